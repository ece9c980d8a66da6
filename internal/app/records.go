package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cropadviser/pkg/domain"
)

// CultivationInput covers create and update of a crop plan record.
type CultivationInput struct {
	UserID              uint // admin may create for another farmer
	Crop                string
	Location            string
	LandSize            string
	Status              string
	PlanningDate        time.Time
	ExpectedHarvestDate *time.Time
	Note                string
}

func (a *App) CreateCultivation(ctx context.Context, actor domain.User, in CultivationInput) (domain.Cultivation, error) {
	ownerID, err := resolveOwner(actor, in.UserID)
	if err != nil {
		return domain.Cultivation{}, err
	}
	if err := validateCultivation(in); err != nil {
		return domain.Cultivation{}, err
	}
	record := domain.Cultivation{
		UserID:              ownerID,
		Crop:                strings.TrimSpace(in.Crop),
		Location:            strings.TrimSpace(in.Location),
		LandSize:            strings.TrimSpace(in.LandSize),
		Status:              cultivationStatus(in.Status),
		PlanningDate:        in.PlanningDate.UTC(),
		ExpectedHarvestDate: in.ExpectedHarvestDate,
		Note:                strings.TrimSpace(in.Note),
		CreatedAt:           a.now().UTC(),
		UpdatedAt:           a.now().UTC(),
	}
	if err := a.store.CreateCultivation(&record); err != nil {
		return domain.Cultivation{}, fmt.Errorf("create cultivation: %w", err)
	}
	return record, nil
}

func (a *App) GetCultivation(ctx context.Context, actor domain.User, id uint) (domain.Cultivation, error) {
	record, ok, err := a.store.GetCultivation(id)
	if err != nil {
		return domain.Cultivation{}, fmt.Errorf("lookup cultivation: %w", err)
	}
	if !ok {
		return domain.Cultivation{}, ErrNotFound
	}
	if !ownsRecord(actor, record.UserID) {
		return domain.Cultivation{}, ErrForbidden
	}
	return record, nil
}

func (a *App) UpdateCultivation(ctx context.Context, actor domain.User, id uint, in CultivationInput) (domain.Cultivation, error) {
	record, err := a.GetCultivation(ctx, actor, id)
	if err != nil {
		return domain.Cultivation{}, err
	}
	if err := validateCultivation(in); err != nil {
		return domain.Cultivation{}, err
	}
	record.Crop = strings.TrimSpace(in.Crop)
	record.Location = strings.TrimSpace(in.Location)
	record.LandSize = strings.TrimSpace(in.LandSize)
	record.Status = cultivationStatus(in.Status)
	record.PlanningDate = in.PlanningDate.UTC()
	record.ExpectedHarvestDate = in.ExpectedHarvestDate
	record.Note = strings.TrimSpace(in.Note)
	record.UpdatedAt = a.now().UTC()
	if err := a.store.SaveCultivation(record); err != nil {
		return domain.Cultivation{}, fmt.Errorf("save cultivation: %w", err)
	}
	return record, nil
}

func (a *App) DeleteCultivation(ctx context.Context, actor domain.User, id uint) error {
	if _, err := a.GetCultivation(ctx, actor, id); err != nil {
		return err
	}
	if err := a.store.DeleteCultivation(id); err != nil {
		return fmt.Errorf("delete cultivation: %w", err)
	}
	return nil
}

// ListCultivations returns the actor's records; admins may pass another
// farmer's id.
func (a *App) ListCultivations(ctx context.Context, actor domain.User, userID uint) ([]domain.Cultivation, error) {
	ownerID, err := resolveOwner(actor, userID)
	if err != nil {
		return nil, err
	}
	records, err := a.store.ListCultivationsByUser(ownerID)
	if err != nil {
		return nil, fmt.Errorf("list cultivations: %w", err)
	}
	return records, nil
}

// FertilizerInput covers create and update of a fertilizer application record.
type FertilizerInput struct {
	UserID              uint
	Crop                string
	FertilizerType      domain.FertilizerType
	ApplicationDate     time.Time
	NextApplicationDate *time.Time
	Quantity            string
	ApplicationMethod   string
	Location            string
	LandSize            string
	Note                string
}

func (a *App) CreateFertilizer(ctx context.Context, actor domain.User, in FertilizerInput) (domain.Fertilizer, error) {
	ownerID, err := resolveOwner(actor, in.UserID)
	if err != nil {
		return domain.Fertilizer{}, err
	}
	if err := validateFertilizer(in); err != nil {
		return domain.Fertilizer{}, err
	}
	record := domain.Fertilizer{
		UserID:              ownerID,
		Crop:                strings.TrimSpace(in.Crop),
		FertilizerType:      in.FertilizerType,
		ApplicationDate:     in.ApplicationDate.UTC(),
		NextApplicationDate: in.NextApplicationDate,
		Quantity:            strings.TrimSpace(in.Quantity),
		ApplicationMethod:   strings.TrimSpace(in.ApplicationMethod),
		Location:            strings.TrimSpace(in.Location),
		LandSize:            strings.TrimSpace(in.LandSize),
		Note:                strings.TrimSpace(in.Note),
		CreatedAt:           a.now().UTC(),
		UpdatedAt:           a.now().UTC(),
	}
	if err := a.store.CreateFertilizer(&record); err != nil {
		return domain.Fertilizer{}, fmt.Errorf("create fertilizer: %w", err)
	}
	return record, nil
}

func (a *App) GetFertilizer(ctx context.Context, actor domain.User, id uint) (domain.Fertilizer, error) {
	record, ok, err := a.store.GetFertilizer(id)
	if err != nil {
		return domain.Fertilizer{}, fmt.Errorf("lookup fertilizer: %w", err)
	}
	if !ok {
		return domain.Fertilizer{}, ErrNotFound
	}
	if !ownsRecord(actor, record.UserID) {
		return domain.Fertilizer{}, ErrForbidden
	}
	return record, nil
}

func (a *App) UpdateFertilizer(ctx context.Context, actor domain.User, id uint, in FertilizerInput) (domain.Fertilizer, error) {
	record, err := a.GetFertilizer(ctx, actor, id)
	if err != nil {
		return domain.Fertilizer{}, err
	}
	if err := validateFertilizer(in); err != nil {
		return domain.Fertilizer{}, err
	}
	record.Crop = strings.TrimSpace(in.Crop)
	record.FertilizerType = in.FertilizerType
	record.ApplicationDate = in.ApplicationDate.UTC()
	record.NextApplicationDate = in.NextApplicationDate
	record.Quantity = strings.TrimSpace(in.Quantity)
	record.ApplicationMethod = strings.TrimSpace(in.ApplicationMethod)
	record.Location = strings.TrimSpace(in.Location)
	record.LandSize = strings.TrimSpace(in.LandSize)
	record.Note = strings.TrimSpace(in.Note)
	record.UpdatedAt = a.now().UTC()
	if err := a.store.SaveFertilizer(record); err != nil {
		return domain.Fertilizer{}, fmt.Errorf("save fertilizer: %w", err)
	}
	return record, nil
}

func (a *App) DeleteFertilizer(ctx context.Context, actor domain.User, id uint) error {
	if _, err := a.GetFertilizer(ctx, actor, id); err != nil {
		return err
	}
	if err := a.store.DeleteFertilizer(id); err != nil {
		return fmt.Errorf("delete fertilizer: %w", err)
	}
	return nil
}

func (a *App) ListFertilizers(ctx context.Context, actor domain.User, userID uint) ([]domain.Fertilizer, error) {
	ownerID, err := resolveOwner(actor, userID)
	if err != nil {
		return nil, err
	}
	records, err := a.store.ListFertilizersByUser(ownerID)
	if err != nil {
		return nil, fmt.Errorf("list fertilizers: %w", err)
	}
	return records, nil
}

func validateCultivation(in CultivationInput) error {
	if strings.TrimSpace(in.Crop) == "" {
		return invalidf("crop is required")
	}
	if in.PlanningDate.IsZero() {
		return invalidf("planning_date is required")
	}
	if in.ExpectedHarvestDate != nil && in.ExpectedHarvestDate.Before(in.PlanningDate) {
		return invalidf("expected_harvest_date cannot precede planning_date")
	}
	return nil
}

func cultivationStatus(raw string) string {
	status := strings.TrimSpace(strings.ToLower(raw))
	if status == "" {
		return "planning"
	}
	return status
}

func validateFertilizer(in FertilizerInput) error {
	if strings.TrimSpace(in.Crop) == "" {
		return invalidf("crop is required")
	}
	switch in.FertilizerType {
	case domain.FertilizerOrganic, domain.FertilizerChemical, domain.FertilizerBiological, domain.FertilizerMixed:
	default:
		return invalidf("unknown fertilizer_type %q", in.FertilizerType)
	}
	if in.ApplicationDate.IsZero() {
		return invalidf("application_date is required")
	}
	if in.NextApplicationDate != nil && in.NextApplicationDate.Before(in.ApplicationDate) {
		return invalidf("next_application_date cannot precede application_date")
	}
	return nil
}

// resolveOwner picks the record owner: callers act on their own data, admins
// may target another user.
func resolveOwner(actor domain.User, requested uint) (uint, error) {
	if requested == 0 || requested == actor.ID {
		return actor.ID, nil
	}
	if actor.UserLevel != domain.LevelAdmin {
		return 0, ErrForbidden
	}
	return requested, nil
}

func ownsRecord(actor domain.User, ownerID uint) bool {
	return actor.ID == ownerID || actor.UserLevel == domain.LevelAdmin
}
