package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"cropadviser/pkg/domain"
)

// GORM models used for persistence.

type UserModel struct {
	ID           uint      `gorm:"primaryKey"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	UserLevel    string    `gorm:"not null;index;default:farmer"`
	Status       string    `gorm:"not null;default:active"`
	Phone        string
	District     string
	AvatarKey    string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type AppointmentModel struct {
	ID              uint      `gorm:"primaryKey"`
	FarmerID        uint      `gorm:"not null;index"`
	AdviserID       uint      `gorm:"not null;index"`
	Subject         string    `gorm:"not null"`
	AppointmentDate time.Time `gorm:"not null;index"`
	DurationMinutes int       `gorm:"not null;default:30"`
	Location        string
	Message         string
	Status          string    `gorm:"not null;index;default:pending"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (AppointmentModel) TableName() string { return "appointments" }

type CultivationModel struct {
	ID                  uint      `gorm:"primaryKey"`
	UserID              uint      `gorm:"not null;index"`
	Crop                string    `gorm:"not null"`
	Location            string
	LandSize            string
	Status              string    `gorm:"not null;default:planning"`
	PlanningDate        time.Time `gorm:"not null"`
	ExpectedHarvestDate *time.Time
	Note                string
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null"`
}

func (CultivationModel) TableName() string { return "cultivations" }

type FertilizerModel struct {
	ID                  uint      `gorm:"primaryKey"`
	UserID              uint      `gorm:"not null;index"`
	Crop                string    `gorm:"not null"`
	FertilizerType      string    `gorm:"not null"`
	ApplicationDate     time.Time `gorm:"not null"`
	NextApplicationDate *time.Time
	Quantity            string
	ApplicationMethod   string
	Location            string
	LandSize            string
	Note                string
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null"`
}

func (FertilizerModel) TableName() string { return "fertilizers" }

type UserFileModel struct {
	ID           uint      `gorm:"primaryKey"`
	AdviserID    uint      `gorm:"not null;index"`
	FarmerID     uint      `gorm:"not null;index"`
	OriginalName string    `gorm:"not null"`
	StoredName   string    `gorm:"not null;uniqueIndex"`
	MimeType     string    `gorm:"not null"`
	SizeBytes    int64     `gorm:"not null"`
	Category     string    `gorm:"index"`
	Notes        string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (UserFileModel) TableName() string { return "user_files" }

type PredictionModel struct {
	ID           uint           `gorm:"primaryKey"`
	UserID       uint           `gorm:"not null;index"`
	Crop         string
	Score        float64
	Status       string         `gorm:"not null;index;default:queued"`
	ErrorMessage string
	Input        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;index"`
	UpdatedAt    time.Time      `gorm:"not null"`
}

func (PredictionModel) TableName() string { return "predictions" }

// conversions

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		UserLevel:    string(u.UserLevel),
		Status:       string(u.Status),
		Phone:        u.Phone,
		District:     u.District,
		AvatarKey:    u.AvatarKey,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		UserLevel:    domain.UserLevel(m.UserLevel),
		Status:       domain.UserStatus(m.Status),
		Phone:        m.Phone,
		District:     m.District,
		AvatarKey:    m.AvatarKey,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func appointmentToModel(a domain.Appointment) AppointmentModel {
	return AppointmentModel{
		ID:              a.ID,
		FarmerID:        a.FarmerID,
		AdviserID:       a.AdviserID,
		Subject:         a.Subject,
		AppointmentDate: a.AppointmentDate,
		DurationMinutes: a.DurationMinutes,
		Location:        a.Location,
		Message:         a.Message,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func appointmentFromModel(m AppointmentModel) domain.Appointment {
	return domain.Appointment{
		ID:              m.ID,
		FarmerID:        m.FarmerID,
		AdviserID:       m.AdviserID,
		Subject:         m.Subject,
		AppointmentDate: m.AppointmentDate,
		DurationMinutes: m.DurationMinutes,
		Location:        m.Location,
		Message:         m.Message,
		Status:          domain.AppointmentStatus(m.Status),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func cultivationToModel(c domain.Cultivation) CultivationModel {
	return CultivationModel{
		ID:                  c.ID,
		UserID:              c.UserID,
		Crop:                c.Crop,
		Location:            c.Location,
		LandSize:            c.LandSize,
		Status:              c.Status,
		PlanningDate:        c.PlanningDate,
		ExpectedHarvestDate: c.ExpectedHarvestDate,
		Note:                c.Note,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func cultivationFromModel(m CultivationModel) domain.Cultivation {
	return domain.Cultivation{
		ID:                  m.ID,
		UserID:              m.UserID,
		Crop:                m.Crop,
		Location:            m.Location,
		LandSize:            m.LandSize,
		Status:              m.Status,
		PlanningDate:        m.PlanningDate,
		ExpectedHarvestDate: m.ExpectedHarvestDate,
		Note:                m.Note,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func fertilizerToModel(f domain.Fertilizer) FertilizerModel {
	return FertilizerModel{
		ID:                  f.ID,
		UserID:              f.UserID,
		Crop:                f.Crop,
		FertilizerType:      string(f.FertilizerType),
		ApplicationDate:     f.ApplicationDate,
		NextApplicationDate: f.NextApplicationDate,
		Quantity:            f.Quantity,
		ApplicationMethod:   f.ApplicationMethod,
		Location:            f.Location,
		LandSize:            f.LandSize,
		Note:                f.Note,
		CreatedAt:           f.CreatedAt,
		UpdatedAt:           f.UpdatedAt,
	}
}

func fertilizerFromModel(m FertilizerModel) domain.Fertilizer {
	return domain.Fertilizer{
		ID:                  m.ID,
		UserID:              m.UserID,
		Crop:                m.Crop,
		FertilizerType:      domain.FertilizerType(m.FertilizerType),
		ApplicationDate:     m.ApplicationDate,
		NextApplicationDate: m.NextApplicationDate,
		Quantity:            m.Quantity,
		ApplicationMethod:   m.ApplicationMethod,
		Location:            m.Location,
		LandSize:            m.LandSize,
		Note:                m.Note,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func userFileToModel(f domain.UserFile) UserFileModel {
	return UserFileModel{
		ID:           f.ID,
		AdviserID:    f.AdviserID,
		FarmerID:     f.FarmerID,
		OriginalName: f.OriginalName,
		StoredName:   f.StoredName,
		MimeType:     f.MimeType,
		SizeBytes:    f.SizeBytes,
		Category:     f.Category,
		Notes:        f.Notes,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

func userFileFromModel(m UserFileModel) domain.UserFile {
	return domain.UserFile{
		ID:           m.ID,
		AdviserID:    m.AdviserID,
		FarmerID:     m.FarmerID,
		OriginalName: m.OriginalName,
		StoredName:   m.StoredName,
		MimeType:     m.MimeType,
		SizeBytes:    m.SizeBytes,
		Category:     m.Category,
		Notes:        m.Notes,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func predictionToModel(p domain.Prediction) (PredictionModel, error) {
	input, err := json.Marshal(p.Input)
	if err != nil {
		return PredictionModel{}, err
	}
	return PredictionModel{
		ID:           p.ID,
		UserID:       p.UserID,
		Crop:         p.Crop,
		Score:        p.Score,
		Status:       string(p.Status),
		ErrorMessage: p.ErrorMessage,
		Input:        datatypes.JSON(input),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}, nil
}

func predictionFromModel(m PredictionModel) domain.Prediction {
	p := domain.Prediction{
		ID:           m.ID,
		UserID:       m.UserID,
		Crop:         m.Crop,
		Score:        m.Score,
		Status:       domain.PredictionStatus(m.Status),
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if len(m.Input) > 0 {
		_ = json.Unmarshal(m.Input, &p.Input)
	}
	return p
}
