package store

import "cropadviser/pkg/domain"

// UserFilter narrows admin user listings.
type UserFilter struct {
	Level    domain.UserLevel
	Query    string // matches name or email, case-insensitive
	Page     int
	PageSize int
}

// AppointmentFilter narrows appointment listings. Zero values mean "any".
type AppointmentFilter struct {
	AdviserID uint
	FarmerID  uint
	Status    domain.AppointmentStatus
}

// FileFilter narrows document listings.
type FileFilter struct {
	FarmerID  uint
	AdviserID uint
	Category  string
}

// PredictionFilter narrows prediction history. PageSize 0 means no paging.
type PredictionFilter struct {
	UserID   uint
	Status   domain.PredictionStatus
	Page     int
	PageSize int
}

// Store defines persistence for every Smart Crop Adviser entity.
type Store interface {
	// users
	CreateUser(u *domain.User) error
	SaveUser(u domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id uint) (domain.User, bool, error)
	ListUsers(f UserFilter) ([]domain.User, int64, error)
	CountUsers() (int64, error)

	// appointments
	CreateAppointment(a *domain.Appointment) error
	SaveAppointment(a domain.Appointment) error
	GetAppointment(id uint) (domain.Appointment, bool, error)
	ListAppointments(f AppointmentFilter) ([]domain.Appointment, error)
	CountAppointments() (int64, error)

	// cultivations
	CreateCultivation(c *domain.Cultivation) error
	SaveCultivation(c domain.Cultivation) error
	GetCultivation(id uint) (domain.Cultivation, bool, error)
	DeleteCultivation(id uint) error
	ListCultivationsByUser(userID uint) ([]domain.Cultivation, error)

	// fertilizers
	CreateFertilizer(f *domain.Fertilizer) error
	SaveFertilizer(f domain.Fertilizer) error
	GetFertilizer(id uint) (domain.Fertilizer, bool, error)
	DeleteFertilizer(id uint) error
	ListFertilizersByUser(userID uint) ([]domain.Fertilizer, error)

	// user files
	CreateUserFile(f *domain.UserFile) error
	SaveUserFile(f domain.UserFile) error
	GetUserFile(id uint) (domain.UserFile, bool, error)
	DeleteUserFile(id uint) error
	ListUserFiles(f FileFilter) ([]domain.UserFile, error)

	// predictions
	CreatePrediction(p *domain.Prediction) error
	SavePrediction(p domain.Prediction) error
	GetPrediction(id uint) (domain.Prediction, bool, error)
	ListPredictions(f PredictionFilter) ([]domain.Prediction, int64, error)
	CountPredictions() (int64, error)
}
