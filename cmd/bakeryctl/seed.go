package main

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/xenking/bakery-shop/internal/domain/auth"
	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/product"
	"github.com/xenking/bakery-shop/internal/domain/user"
	"github.com/xenking/bakery-shop/internal/repository"
)

// seedFile is the on-disk seed format. API keys are given in plaintext
// and stored hashed.
type seedFile struct {
	Categories []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"categories"`
	Products []struct {
		ID          string          `json:"id"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Price       decimal.Decimal `json:"price"`
		Category    string          `json:"category"`
		Image       string          `json:"image"`
		Stock       int             `json:"stock"`
	} `json:"products"`
	Users []struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Role    string `json:"role"`
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Address string `json:"address"`
	} `json:"users"`
	Discounts []struct {
		Code          string              `json:"code"`
		Description   string              `json:"description"`
		Type          string              `json:"type"`
		Value         decimal.Decimal     `json:"value"`
		MinOrderValue decimal.Decimal     `json:"minOrderValue"`
		MaxDiscount   decimal.NullDecimal `json:"maxDiscount"`
		UsageLimit    *int                `json:"usageLimit"`
		StartDate     time.Time           `json:"startDate"`
		EndDate       time.Time           `json:"endDate"`
		Active        *bool               `json:"active"`
	} `json:"discounts"`
	APIKeys []struct {
		Name   string   `json:"name"`
		Key    string   `json:"key"`
		Scopes []string `json:"scopes"`
	} `json:"apiKeys"`
}

func seedCommand(databaseURL *string) *cobra.Command {
	var pepper string
	cmd := &cobra.Command{
		Use:   "seed <file.json|file.json.gz>",
		Short: "Upsert categories, products, users, discounts and API keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			raw, err := readSeed(args[0])
			if err != nil {
				return err
			}
			data, err := raw.toSeedData([]byte(pepper))
			if err != nil {
				return err
			}

			slog.Info("connecting to database")
			pool, err := repository.NewPool(ctx, *databaseURL)
			if err != nil {
				return errors.Wrap(err, "connect")
			}
			defer pool.Close()

			if err := repository.NewSeeder(pool).Seed(ctx, data); err != nil {
				return err
			}
			slog.Info("seed completed",
				slog.Int("categories", len(data.Categories)),
				slog.Int("products", len(data.Products)),
				slog.Int("users", len(data.Users)),
				slog.Int("discounts", len(data.Discounts)),
				slog.Int("api_keys", len(data.APIKeys)),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&pepper, "api-key-pepper", os.Getenv("BAKERY_API_KEY_PEPPER"), "HMAC pepper for API key hashing")
	return cmd
}

func readSeed(path string) (*seedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open seed file")
	}
	defer f.Close()

	var r io.Reader = f
	if filepath.Ext(path) == ".gz" {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		defer gz.Close()
		r = gz
	}

	var s seedFile
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, errors.Wrapf(err, "decode %s", filepath.Base(path))
	}
	return &s, nil
}

func (s *seedFile) toSeedData(pepper []byte) (*repository.SeedData, error) {
	if len(s.APIKeys) > 0 && len(pepper) == 0 {
		return nil, errors.New("api key pepper is required to seed API keys")
	}

	data := &repository.SeedData{}
	for _, c := range s.Categories {
		data.Categories = append(data.Categories, product.Category{ID: c.ID, Name: c.Name, Description: c.Description})
	}
	for _, p := range s.Products {
		if p.Stock < 0 || p.Price.IsNegative() {
			return nil, errors.Errorf("product %s: negative price or stock", p.ID)
		}
		data.Products = append(data.Products, product.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			CategoryID:  p.Category,
			Image:       p.Image,
			Stock:       p.Stock,
		})
	}
	for _, u := range s.Users {
		data.Users = append(data.Users, user.User{
			ID:      u.ID,
			Email:   u.Email,
			Role:    lo.Ternary(u.Role == "", "customer", u.Role),
			Contact: user.Contact{Name: u.Name, Phone: u.Phone, Address: u.Address},
		})
	}
	for _, d := range s.Discounts {
		def := discount.Discount{
			ID:            uuid.NewString(),
			Code:          d.Code,
			Description:   d.Description,
			Type:          discount.Type(d.Type),
			Value:         d.Value,
			MinOrderValue: d.MinOrderValue,
			MaxDiscount:   d.MaxDiscount,
			UsageLimit:    d.UsageLimit,
			StartDate:     d.StartDate,
			EndDate:       d.EndDate,
			Active:        lo.FromPtrOr(d.Active, true),
		}
		if err := def.Check(); err != nil {
			return nil, errors.Wrapf(err, "discount %s", d.Code)
		}
		data.Discounts = append(data.Discounts, def)
	}
	for _, k := range s.APIKeys {
		if k.Key == "" {
			return nil, errors.Errorf("api key %s: empty key", k.Name)
		}
		data.APIKeys = append(data.APIKeys, auth.APIKeyInfo{
			// Stable id so re-seeding rotates the key in place.
			ID:      uuid.NewSHA1(uuid.NameSpaceOID, []byte(k.Name)).String(),
			KeyHash: hex.EncodeToString(auth.HashKey(pepper, k.Key)),
			Name:    k.Name,
			Scopes:  k.Scopes,
		})
	}
	return data, nil
}
