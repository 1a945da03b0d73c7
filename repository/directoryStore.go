package repository

import (
	"context"

	"bitbucket.org/mmdatafocus/logistics_backend/config"
	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"gorm.io/gorm"
)

// ClientStore reads through the Redis cache. Writes drop the cached copy.
type ClientStore struct {
	db *gorm.DB
}

func (s *ClientStore) GetClient(ctx context.Context, id string) (*models.Client, error) {
	tenantId := tenantOf(ctx)
	if tenantId != "" {
		cached, err := utils.RetrieveRedis[models.Client](ctx, tenantId, id)
		if err != nil {
			config.LogError(config.GetLogger(), "repository", "GetClient", "reading client cache", id, err)
		}
		if cached != nil {
			return cached, nil
		}
	}
	client, err := fetch[models.Client](ctx, s.db, "client", id)
	if err != nil {
		return nil, err
	}
	if tenantId != "" {
		if err := utils.StoreRedis(ctx, tenantId, client.ID, client); err != nil {
			config.LogError(config.GetLogger(), "repository", "GetClient", "writing client cache", id, err)
		}
	}
	return client, nil
}

func (s *ClientStore) CreateClient(ctx context.Context, c *models.Client) error {
	return translate(s.db.WithContext(ctx).Create(c).Error, "client")
}

func (s *ClientStore) UpdateClient(ctx context.Context, c *models.Client) error {
	res := scoped(ctx, s.db, "clients").
		Model(c).
		Select("*").
		Omit("id", "tenant_id", "created_at").
		Updates(c)
	if res.Error != nil {
		return translate(res.Error, "client")
	}
	if res.RowsAffected == 0 {
		return utils.NotFound("client not found")
	}
	if tenantId := tenantOf(ctx); tenantId != "" {
		if err := utils.RemoveRedisItem[models.Client](ctx, tenantId, c.ID); err != nil {
			config.LogError(config.GetLogger(), "repository", "UpdateClient", "dropping client cache", c.ID, err)
		}
	}
	return nil
}

type WarehouseStore struct {
	db *gorm.DB
}

func (s *WarehouseStore) GetWarehouse(ctx context.Context, id string) (*models.Warehouse, error) {
	return fetch[models.Warehouse](ctx, s.db, "warehouse", id)
}

func (s *WarehouseStore) CreateWarehouse(ctx context.Context, w *models.Warehouse) error {
	return translate(s.db.WithContext(ctx).Create(w).Error, "warehouse")
}

// UserStore backs the admin notifications and the seed command.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) ListElevatedUsers(ctx context.Context, tenantId string) ([]*models.User, error) {
	var users []*models.User
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND role IN ? AND is_active = ?", tenantId, []models.UserRole{models.UserRoleOwner, models.UserRoleAdmin}, true).
		Order("created_at").
		Find(&users).Error
	return users, err
}

func (s *UserStore) CreateUser(ctx context.Context, u *models.User) error {
	return translate(s.db.WithContext(ctx).Create(u).Error, "user "+u.Username)
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}
