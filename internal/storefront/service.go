// Package storefront implements the actions behind the storefront screens: signing in
// and up, the profile, the catalog, product details, adding a product and purchasing.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lojinha-app/storefront/internal/catalog"
	"github.com/lojinha-app/storefront/internal/identity"
	"github.com/lojinha-app/storefront/internal/media"
	"github.com/lojinha-app/storefront/sdk/session"
	log "github.com/sirupsen/logrus"
)

// IdentityService is the part of the identity provider the screens use.
type IdentityService interface {
	CurrentSession(ctx context.Context) (session.Identity, error)
	SignIn(ctx context.Context, login, password string) (*session.Identity, error)
	SignUp(ctx context.Context, input identity.SignUpInput) (*identity.SignUpResult, error)
	SignOut(ctx context.Context) error
	Attributes(ctx context.Context) (map[string]string, error)
}

// CatalogService is the product API.
type CatalogService interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	CreateProduct(ctx context.Context, input catalog.CreateProductInput) (*catalog.Product, error)
}

// MediaService stores and signs product images.
type MediaService interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	URL(ctx context.Context, key string) (string, error)
}

// ErrCatalogUnavailable is returned when no API is configured.
var ErrCatalogUnavailable = errors.New("storefront: catalog is not configured")

// ValidationError reports missing or invalid form fields.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "invalid fields: " + strings.Join(e.Fields, ", ")
}

// Profile is what the profile screen shows.
type Profile struct {
	ID       string
	Username string
	Email    string
	Name     string
	Address  string
	Phone    string
}

// SignUpInput is the registration form.
type SignUpInput = identity.SignUpInput

// AddProductInput is the add-product form. Price is the text typed by the user.
type AddProductInput struct {
	Name        string
	Description string
	Price       string
	Category    string
	ImagePath   string
}

// Receipt confirms a purchase.
type Receipt struct {
	ProductID string
	Name      string
	Price     float64
	At        time.Time
}

// Title is the confirmation heading.
func (r Receipt) Title() string { return "Compra efetuada" }

// Message is the confirmation body.
func (r Receipt) Message() string { return "Você adquiriu: " + r.Name }

// Service bundles the screen actions.
type Service struct {
	identity IdentityService
	catalog  CatalogService
	media    MediaService
	now      func() time.Time
}

// NewService creates a service. catalog and media may be nil when not configured.
func NewService(identitySvc IdentityService, catalogSvc CatalogService, mediaSvc MediaService) *Service {
	return &Service{identity: identitySvc, catalog: catalogSvc, media: mediaSvc, now: time.Now}
}

// SignIn reuses an existing session, otherwise signs in with the given login
// (username or e-mail) and password.
func (s *Service) SignIn(ctx context.Context, login, password string) (*session.Identity, error) {
	if current, err := s.identity.CurrentSession(ctx); err == nil && current.ID() != "" {
		log.WithField("user", current.ID()).Info("already signed in, reusing session")
		return &current, nil
	}
	var missing []string
	if strings.TrimSpace(login) == "" {
		missing = append(missing, "login")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: missing, Message: "Informe usuário e senha."}
	}
	return s.identity.SignIn(ctx, login, password)
}

// SignUp registers a user and signs in right away when the account needs no confirmation.
func (s *Service) SignUp(ctx context.Context, input SignUpInput) (*identity.SignUpResult, error) {
	var missing []string
	if strings.TrimSpace(input.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(input.Email) == "" {
		missing = append(missing, "email")
	}
	if input.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: missing, Message: "Preencha nome, e-mail e senha."}
	}
	result, err := s.identity.SignUp(ctx, input)
	if err != nil {
		return nil, err
	}
	if result.Confirmed {
		if _, err = s.identity.SignIn(ctx, input.Email, input.Password); err != nil {
			return result, fmt.Errorf("storefront: sign in after sign-up: %w", err)
		}
	}
	return result, nil
}

// SignOut ends the session.
func (s *Service) SignOut(ctx context.Context) error {
	return s.identity.SignOut(ctx)
}

// Profile returns the signed-in user's profile.
func (s *Service) Profile(ctx context.Context) (*Profile, error) {
	current, err := s.identity.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	attrs := current.Attributes
	if fetched, errAttrs := s.identity.Attributes(ctx); errAttrs == nil && len(fetched) > 0 {
		attrs = fetched
	} else if errAttrs != nil {
		log.WithError(errAttrs).Warn("failed to load user attributes")
	}
	return &Profile{
		ID:       current.ID(),
		Username: current.Username,
		Email:    attrs[identity.AttrEmail],
		Name:     attrs[identity.AttrName],
		Address:  attrs[identity.AttrAddress],
		Phone:    attrs[identity.AttrPhone],
	}, nil
}

// Catalog lists the products with presigned image URLs.
func (s *Service) Catalog(ctx context.Context) ([]catalog.Product, error) {
	if s.catalog == nil {
		return nil, ErrCatalogUnavailable
	}
	products, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if s.media != nil {
		media.ResolveURLs(ctx, s.media, products)
	}
	return products, nil
}

// Product returns one product with its presigned image URL.
func (s *Service) Product(ctx context.Context, id string) (*catalog.Product, error) {
	if s.catalog == nil {
		return nil, ErrCatalogUnavailable
	}
	product, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.media != nil && product.Image != "" {
		if u, errURL := s.media.URL(ctx, product.Image); errURL == nil {
			product.ImageURL = u
		} else {
			log.WithFields(log.Fields{"key": product.Image, "error": errURL}).Warn("failed to resolve product image")
		}
	}
	return product, nil
}

// AddProduct validates the form, uploads the image and creates the product.
func (s *Service) AddProduct(ctx context.Context, input AddProductInput) (*catalog.Product, error) {
	var missing []string
	if strings.TrimSpace(input.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(input.Price) == "" {
		missing = append(missing, "price")
	}
	if strings.TrimSpace(input.ImagePath) == "" {
		missing = append(missing, "image")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: missing, Message: "Preencha os campos obrigatórios (nome, preço e imagem)."}
	}
	price, err := ParsePrice(input.Price)
	if err != nil {
		return nil, &ValidationError{Fields: []string{"price"}, Message: err.Error()}
	}
	if s.catalog == nil {
		return nil, ErrCatalogUnavailable
	}
	if s.media == nil {
		return nil, media.ErrNotConfigured
	}

	file, err := os.Open(strings.TrimSpace(input.ImagePath))
	if err != nil {
		return nil, &ValidationError{Fields: []string{"image"}, Message: fmt.Sprintf("imagem inválida: %v", err)}
	}
	defer func() {
		if errClose := file.Close(); errClose != nil {
			log.Errorf("close image: %v", errClose)
		}
	}()
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("storefront: stat image: %w", err)
	}
	if info.IsDir() {
		return nil, &ValidationError{Fields: []string{"image"}, Message: "imagem inválida: é um diretório"}
	}

	name := strings.TrimSpace(input.Name)
	key := media.ImageKey(name, s.now())
	if err = s.media.Upload(ctx, key, file, info.Size(), "image/jpeg"); err != nil {
		return nil, err
	}
	product, err := s.catalog.CreateProduct(ctx, catalog.CreateProductInput{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Price:       price,
		Image:       key,
		Category:    strings.TrimSpace(input.Category),
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"key": key, "operation": "createProduct"}).Infof("product %s created", product.ID)
	return product, nil
}

// ParsePrice parses a price typed by the user. A comma is accepted as the decimal
// separator and an R$ prefix is ignored.
func ParsePrice(raw string) (float64, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "R$"))
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("preço inválido: %q", raw)
	}
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("preço inválido: %q", raw)
	}
	return price, nil
}

// Purchase confirms the purchase of a product. There is no payment backend.
func (s *Service) Purchase(product catalog.Product) Receipt {
	receipt := Receipt{ProductID: product.ID, Name: product.Name, Price: product.Price, At: s.now()}
	log.WithField("key", product.ID).Info("purchase confirmed")
	return receipt
}
