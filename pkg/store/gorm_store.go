package store

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cropadviser/pkg/domain"
)

// GormStore implements Store on GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the database and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&AppointmentModel{},
		&CultivationModel{},
		&FertilizerModel{},
		&UserFileModel{},
		&PredictionModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// users

func (s *GormStore) CreateUser(u *domain.User) error {
	model := userToModel(*u)
	if err := s.db.Create(&model).Error; err != nil {
		return err
	}
	u.ID = model.ID
	return nil
}

func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "password_hash", "user_level", "status", "phone", "district", "avatar_key", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) GetUserByID(id uint) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) ListUsers(f UserFilter) ([]domain.User, int64, error) {
	tx := s.db.Model(&UserModel{})
	if f.Level != "" {
		tx = tx.Where("user_level = ?", string(f.Level))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		tx = tx.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	tx = tx.Order("created_at ASC")
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		tx = tx.Offset((page - 1) * f.PageSize).Limit(f.PageSize)
	}
	var models []UserModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, 0, err
	}
	users := make([]domain.User, 0, len(models))
	for _, m := range models {
		users = append(users, userFromModel(m))
	}
	return users, total, nil
}

func (s *GormStore) CountUsers() (int64, error) {
	var count int64
	err := s.db.Model(&UserModel{}).Count(&count).Error
	return count, err
}

// appointments

func (s *GormStore) CreateAppointment(a *domain.Appointment) error {
	model := appointmentToModel(*a)
	if err := s.db.Create(&model).Error; err != nil {
		return err
	}
	a.ID = model.ID
	return nil
}

func (s *GormStore) SaveAppointment(a domain.Appointment) error {
	model := appointmentToModel(a)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"subject", "appointment_date", "duration_minutes", "location", "message", "status", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) GetAppointment(id uint) (domain.Appointment, bool, error) {
	var model AppointmentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Appointment{}, false, nil
		}
		return domain.Appointment{}, false, err
	}
	return appointmentFromModel(model), true, nil
}

func (s *GormStore) ListAppointments(f AppointmentFilter) ([]domain.Appointment, error) {
	tx := s.db.Model(&AppointmentModel{})
	if f.AdviserID != 0 {
		tx = tx.Where("adviser_id = ?", f.AdviserID)
	}
	if f.FarmerID != 0 {
		tx = tx.Where("farmer_id = ?", f.FarmerID)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", string(f.Status))
	}
	var models []AppointmentModel
	if err := tx.Order("appointment_date DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Appointment, 0, len(models))
	for _, m := range models {
		out = append(out, appointmentFromModel(m))
	}
	return out, nil
}

func (s *GormStore) CountAppointments() (int64, error) {
	var count int64
	err := s.db.Model(&AppointmentModel{}).Count(&count).Error
	return count, err
}

// cultivations

func (s *GormStore) CreateCultivation(c *domain.Cultivation) error {
	model := cultivationToModel(*c)
	if err := s.db.Create(&model).Error; err != nil {
		return err
	}
	c.ID = model.ID
	return nil
}

func (s *GormStore) SaveCultivation(c domain.Cultivation) error {
	model := cultivationToModel(c)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"crop", "location", "land_size", "status", "planning_date", "expected_harvest_date", "note", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) GetCultivation(id uint) (domain.Cultivation, bool, error) {
	var model CultivationModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Cultivation{}, false, nil
		}
		return domain.Cultivation{}, false, err
	}
	return cultivationFromModel(model), true, nil
}

func (s *GormStore) DeleteCultivation(id uint) error {
	return s.db.Delete(&CultivationModel{}, "id = ?", id).Error
}

func (s *GormStore) ListCultivationsByUser(userID uint) ([]domain.Cultivation, error) {
	var models []CultivationModel
	if err := s.db.Where("user_id = ?", userID).Order("planning_date DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Cultivation, 0, len(models))
	for _, m := range models {
		out = append(out, cultivationFromModel(m))
	}
	return out, nil
}

// fertilizers

func (s *GormStore) CreateFertilizer(f *domain.Fertilizer) error {
	model := fertilizerToModel(*f)
	if err := s.db.Create(&model).Error; err != nil {
		return err
	}
	f.ID = model.ID
	return nil
}

func (s *GormStore) SaveFertilizer(f domain.Fertilizer) error {
	model := fertilizerToModel(f)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"crop", "fertilizer_type", "application_date", "next_application_date", "quantity", "application_method", "location", "land_size", "note", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) GetFertilizer(id uint) (domain.Fertilizer, bool, error) {
	var model FertilizerModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Fertilizer{}, false, nil
		}
		return domain.Fertilizer{}, false, err
	}
	return fertilizerFromModel(model), true, nil
}

func (s *GormStore) DeleteFertilizer(id uint) error {
	return s.db.Delete(&FertilizerModel{}, "id = ?", id).Error
}

func (s *GormStore) ListFertilizersByUser(userID uint) ([]domain.Fertilizer, error) {
	var models []FertilizerModel
	if err := s.db.Where("user_id = ?", userID).Order("application_date DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Fertilizer, 0, len(models))
	for _, m := range models {
		out = append(out, fertilizerFromModel(m))
	}
	return out, nil
}

// user files

func (s *GormStore) CreateUserFile(f *domain.UserFile) error {
	model := userFileToModel(*f)
	if err := s.db.Create(&model).Error; err != nil {
		return err
	}
	f.ID = model.ID
	return nil
}

func (s *GormStore) SaveUserFile(f domain.UserFile) error {
	model := userFileToModel(f)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"category", "notes", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) GetUserFile(id uint) (domain.UserFile, bool, error) {
	var model UserFileModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.UserFile{}, false, nil
		}
		return domain.UserFile{}, false, err
	}
	return userFileFromModel(model), true, nil
}

func (s *GormStore) DeleteUserFile(id uint) error {
	return s.db.Delete(&UserFileModel{}, "id = ?", id).Error
}

func (s *GormStore) ListUserFiles(f FileFilter) ([]domain.UserFile, error) {
	tx := s.db.Model(&UserFileModel{})
	if f.FarmerID != 0 {
		tx = tx.Where("farmer_id = ?", f.FarmerID)
	}
	if f.AdviserID != 0 {
		tx = tx.Where("adviser_id = ?", f.AdviserID)
	}
	if f.Category != "" {
		tx = tx.Where("category = ?", f.Category)
	}
	var models []UserFileModel
	if err := tx.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.UserFile, 0, len(models))
	for _, m := range models {
		out = append(out, userFileFromModel(m))
	}
	return out, nil
}

// predictions

func (s *GormStore) CreatePrediction(p *domain.Prediction) error {
	model, err := predictionToModel(*p)
	if err != nil {
		return err
	}
	if err := s.db.Create(&model).Error; err != nil {
		return err
	}
	p.ID = model.ID
	return nil
}

func (s *GormStore) SavePrediction(p domain.Prediction) error {
	model, err := predictionToModel(p)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"crop", "score", "status", "error_message", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) GetPrediction(id uint) (domain.Prediction, bool, error) {
	var model PredictionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Prediction{}, false, nil
		}
		return domain.Prediction{}, false, err
	}
	return predictionFromModel(model), true, nil
}

func (s *GormStore) ListPredictions(f PredictionFilter) ([]domain.Prediction, int64, error) {
	tx := s.db.Model(&PredictionModel{})
	if f.UserID != 0 {
		tx = tx.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", string(f.Status))
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	tx = tx.Order("created_at DESC")
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		tx = tx.Offset((page - 1) * f.PageSize).Limit(f.PageSize)
	}
	var models []PredictionModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.Prediction, 0, len(models))
	for _, m := range models {
		out = append(out, predictionFromModel(m))
	}
	return out, total, nil
}

func (s *GormStore) CountPredictions() (int64, error) {
	var count int64
	err := s.db.Model(&PredictionModel{}).Count(&count).Error
	return count, err
}
