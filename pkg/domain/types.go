package domain

import "time"

type UserLevel string

const (
	LevelAdmin      UserLevel = "admin"
	LevelAgent      UserLevel = "agent"
	LevelFarmer     UserLevel = "farmer"
	LevelResearcher UserLevel = "researcher"
)

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

type FertilizerType string

const (
	FertilizerOrganic    FertilizerType = "organic"
	FertilizerChemical   FertilizerType = "chemical"
	FertilizerBiological FertilizerType = "biological"
	FertilizerMixed      FertilizerType = "mixed"
)

type PredictionStatus string

const (
	PredictionQueued     PredictionStatus = "queued"
	PredictionProcessing PredictionStatus = "processing"
	PredictionReady      PredictionStatus = "ready"
	PredictionFailed     PredictionStatus = "failed"
)

type User struct {
	ID           uint       `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	UserLevel    UserLevel  `json:"userlevel"`
	Status       UserStatus `json:"status"`
	Phone        string     `json:"phone,omitempty"`
	District     string     `json:"district,omitempty"`
	AvatarKey    string     `json:"-"`
	AvatarURL    string     `json:"avatar_url,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Appointment struct {
	ID              uint              `json:"id"`
	FarmerID        uint              `json:"farmer_id"`
	AdviserID       uint              `json:"adviser_id"`
	Subject         string            `json:"subject"`
	AppointmentDate time.Time         `json:"appointment_date"`
	DurationMinutes int               `json:"duration_minutes"`
	Location        string            `json:"location,omitempty"`
	Message         string            `json:"message,omitempty"`
	Status          AppointmentStatus `json:"appointment_status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type Cultivation struct {
	ID                  uint       `json:"id"`
	UserID              uint       `json:"user_id"`
	Crop                string     `json:"crop"`
	Location            string     `json:"location,omitempty"`
	LandSize            string     `json:"land_size,omitempty"`
	Status              string     `json:"status"`
	PlanningDate        time.Time  `json:"planning_date"`
	ExpectedHarvestDate *time.Time `json:"expected_harvest_date,omitempty"`
	Note                string     `json:"note,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type Fertilizer struct {
	ID                  uint           `json:"id"`
	UserID              uint           `json:"user_id"`
	Crop                string         `json:"crop"`
	FertilizerType      FertilizerType `json:"fertilizer_type"`
	ApplicationDate     time.Time      `json:"application_date"`
	NextApplicationDate *time.Time     `json:"next_application_date,omitempty"`
	Quantity            string         `json:"quantity,omitempty"`
	ApplicationMethod   string         `json:"application_method,omitempty"`
	Location            string         `json:"location,omitempty"`
	LandSize            string         `json:"land_size,omitempty"`
	Note                string         `json:"note,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

type UserFile struct {
	ID           uint      `json:"id"`
	AdviserID    uint      `json:"adviser_id"`
	FarmerID     uint      `json:"farmer_id"`
	OriginalName string    `json:"original_name"`
	StoredName   string    `json:"-"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	Category     string    `json:"category,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	PublicURL    string    `json:"public_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PredictionInput carries the field measurements a recommendation is
// computed from. AEZ is the Agro-Ecological Zone code (e.g. "WL1", "DL2").
type PredictionInput struct {
	AEZ          string  `json:"aez"`
	SoilPH       float64 `json:"soil_ph"`
	RainfallMM   float64 `json:"rainfall_mm"`
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
	LandSize     string  `json:"land_size,omitempty"`
}

type Prediction struct {
	ID           uint             `json:"id"`
	UserID       uint             `json:"user_id"`
	Crop         string           `json:"crop,omitempty"`
	Score        float64          `json:"score,omitempty"`
	Status       PredictionStatus `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Input        PredictionInput  `json:"input"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
