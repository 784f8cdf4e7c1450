package repository

import (
	"errors"
	"strings"

	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/Tonic56/stock-trading-simulator/lib/errs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UsersRepository interface {
	CreateUser(user *models.User) error
	GetUserByID(userID uuid.UUID) (*models.User, error)
	GetUserByName(username string) (*models.User, error)
	LockUserByID(userID uuid.UUID) (*models.User, error)
	UpdateCash(userID uuid.UUID, cash decimal.Decimal) error
	UpdatePasswordHash(userID uuid.UUID, hash string) error
}

type usersRepository struct {
	db *gorm.DB
}

func NewUsersRepository(db *gorm.DB) UsersRepository {
	return &usersRepository{db: db}
}

func (db *usersRepository) CreateUser(user *models.User) error {
	if err := db.db.Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}

		return err
	}

	return nil
}

func (db *usersRepository) GetUserByID(userID uuid.UUID) (*models.User, error) {
	return db.first(db.db.Where("id = ?", userID))
}

func (db *usersRepository) GetUserByName(username string) (*models.User, error) {
	return db.first(db.db.Where("username = ?", username))
}

// LockUserByID reads the user row with a row-level write lock held until the
// surrounding transaction ends.
func (db *usersRepository) LockUserByID(userID uuid.UUID) (*models.User, error) {
	return db.first(db.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", userID))
}

func (db *usersRepository) first(query *gorm.DB) (*models.User, error) {
	var user models.User
	if err := query.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}

		return nil, err
	}
	return &user, nil
}

func (db *usersRepository) UpdateCash(userID uuid.UUID, cash decimal.Decimal) error {
	return db.update(userID, "cash", cash)
}

func (db *usersRepository) UpdatePasswordHash(userID uuid.UUID, hash string) error {
	return db.update(userID, "password_hash", hash)
}

func (db *usersRepository) update(userID uuid.UUID, column string, value any) error {
	result := db.db.Model(&models.User{}).Where("id = ?", userID).Update(column, value)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return errs.ErrNotFound
	}

	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	errorString := err.Error()
	return strings.Contains(errorString, "UNIQUE") || strings.Contains(errorString, "duplicate")
}
