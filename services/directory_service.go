package services

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/google/uuid"
)

const defaultPaymentTermsDays = 30

// DirectoryService manages the reference data parcels and invoices point at.
type DirectoryService struct {
	Deps
	PhoneRegion string
}

func NewDirectoryService(deps Deps, phoneRegion string) *DirectoryService {
	if phoneRegion == "" {
		phoneRegion = "MM"
	}
	return &DirectoryService{Deps: deps, PhoneRegion: strings.ToUpper(phoneRegion)}
}

func (s *DirectoryService) CreateClient(ctx context.Context, input models.NewClient) (*models.Client, error) {
	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	client := &models.Client{ID: uuid.NewString(), TenantId: actor.TenantId}
	if err := s.applyClient(client, input); err != nil {
		return nil, err
	}
	if err := s.UoW.Stores().Clients.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventClientCreated, models.EntityClient, client.ID, "", "", s.now()))
	return client, nil
}

// UpdateClient replaces the client's details. Invoices already issued keep their snapshot.
func (s *DirectoryService) UpdateClient(ctx context.Context, id string, input models.NewClient) (*models.Client, error) {
	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	clients := s.UoW.Stores().Clients
	client, err := clients.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyClient(client, input); err != nil {
		return nil, err
	}
	if err := clients.UpdateClient(ctx, client); err != nil {
		return nil, err
	}
	_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventClientUpdated, models.EntityClient, client.ID, "", "", s.now()))
	return client, nil
}

func (s *DirectoryService) applyClient(client *models.Client, input models.NewClient) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return utils.InvalidRequest("client name is required")
	}
	if input.DefaultRate.IsNegative() {
		return utils.InvalidRequest("default rate must not be negative")
	}
	client.Name = name
	client.Address = input.Address
	client.VatNumber = input.VatNumber
	client.ContactName = input.ContactName
	client.Email = input.Email
	client.PaymentTermsDays = utils.DereferencePtr(input.PaymentTermsDays, defaultPaymentTermsDays)
	client.DefaultRate = input.DefaultRate
	client.Currency = strings.ToUpper(input.Currency)
	client.Phone = ""
	if phone := strings.TrimSpace(input.Phone); phone != "" {
		region := s.PhoneRegion
		if input.PhoneRegion != "" {
			region = strings.ToUpper(input.PhoneRegion)
		}
		normalized, err := utils.NormalizePhoneNumber(phone, region)
		if err != nil {
			return utils.InvalidRequest("invalid phone number %q: %v", phone, err)
		}
		client.Phone = normalized
	}
	return nil
}

func (s *DirectoryService) GetClient(ctx context.Context, id string) (*models.Client, error) {
	if _, err := ActorFromContext(ctx); err != nil {
		return nil, err
	}
	return s.UoW.Stores().Clients.GetClient(ctx, id)
}

func (s *DirectoryService) CreateWarehouse(ctx context.Context, input models.NewWarehouse) (*models.Warehouse, error) {
	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, utils.InvalidRequest("warehouse name is required")
	}
	warehouse := &models.Warehouse{
		ID:       uuid.NewString(),
		TenantId: actor.TenantId,
		Name:     name,
		Address:  input.Address,
		IsActive: utils.NewTrue(),
	}
	if err := s.UoW.Stores().Warehouses.CreateWarehouse(ctx, warehouse); err != nil {
		return nil, err
	}
	_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventWarehouseCreated, models.EntityWarehouse, warehouse.ID, "", "", s.now()))
	return warehouse, nil
}
