package store

import (
	"sort"
	"strings"
	"sync"

	"cropadviser/pkg/domain"
)

// MemoryStore is an in-process Store used by tests and local development.
// It mirrors the ordering semantics of the GORM implementation.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[uint]domain.User
	appointments map[uint]domain.Appointment
	cultivations map[uint]domain.Cultivation
	fertilizers  map[uint]domain.Fertilizer
	files        map[uint]domain.UserFile
	predictions  map[uint]domain.Prediction
	nextID       map[string]uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[uint]domain.User),
		appointments: make(map[uint]domain.Appointment),
		cultivations: make(map[uint]domain.Cultivation),
		fertilizers:  make(map[uint]domain.Fertilizer),
		files:        make(map[uint]domain.UserFile),
		predictions:  make(map[uint]domain.Prediction),
		nextID:       make(map[string]uint),
	}
}

func (s *MemoryStore) allocate(kind string) uint {
	s.nextID[kind]++
	return s.nextID[kind]
}

// users

func (s *MemoryStore) CreateUser(u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.allocate("user")
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	_, ok, err := s.GetUserByEmail(email)
	return ok, err
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id uint) (domain.User, bool, error) {
	s.mu.RLock()
	u, ok := s.users[id]
	s.mu.RUnlock()
	return u, ok, nil
}

func (s *MemoryStore) ListUsers(f UserFilter) ([]domain.User, int64, error) {
	s.mu.RLock()
	matched := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		if f.Level != "" && u.UserLevel != f.Level {
			continue
		}
		if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
			if !strings.Contains(strings.ToLower(u.Name), q) && !strings.Contains(strings.ToLower(u.Email), q) {
				continue
			}
		}
		matched = append(matched, u)
	}
	s.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	total := int64(len(matched))
	return paginate(matched, f.Page, f.PageSize), total, nil
}

func (s *MemoryStore) CountUsers() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

// appointments

func (s *MemoryStore) CreateAppointment(a *domain.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.allocate("appointment")
	s.appointments[a.ID] = *a
	return nil
}

func (s *MemoryStore) SaveAppointment(a domain.Appointment) error {
	s.mu.Lock()
	s.appointments[a.ID] = a
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetAppointment(id uint) (domain.Appointment, bool, error) {
	s.mu.RLock()
	a, ok := s.appointments[id]
	s.mu.RUnlock()
	return a, ok, nil
}

func (s *MemoryStore) ListAppointments(f AppointmentFilter) ([]domain.Appointment, error) {
	s.mu.RLock()
	out := make([]domain.Appointment, 0, len(s.appointments))
	for _, a := range s.appointments {
		if f.AdviserID != 0 && a.AdviserID != f.AdviserID {
			continue
		}
		if f.FarmerID != 0 && a.FarmerID != f.FarmerID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].AppointmentDate.After(out[j].AppointmentDate) })
	return out, nil
}

func (s *MemoryStore) CountAppointments() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.appointments)), nil
}

// cultivations

func (s *MemoryStore) CreateCultivation(c *domain.Cultivation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.allocate("cultivation")
	s.cultivations[c.ID] = *c
	return nil
}

func (s *MemoryStore) SaveCultivation(c domain.Cultivation) error {
	s.mu.Lock()
	s.cultivations[c.ID] = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetCultivation(id uint) (domain.Cultivation, bool, error) {
	s.mu.RLock()
	c, ok := s.cultivations[id]
	s.mu.RUnlock()
	return c, ok, nil
}

func (s *MemoryStore) DeleteCultivation(id uint) error {
	s.mu.Lock()
	delete(s.cultivations, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListCultivationsByUser(userID uint) ([]domain.Cultivation, error) {
	s.mu.RLock()
	out := make([]domain.Cultivation, 0)
	for _, c := range s.cultivations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].PlanningDate.After(out[j].PlanningDate) })
	return out, nil
}

// fertilizers

func (s *MemoryStore) CreateFertilizer(f *domain.Fertilizer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = s.allocate("fertilizer")
	s.fertilizers[f.ID] = *f
	return nil
}

func (s *MemoryStore) SaveFertilizer(f domain.Fertilizer) error {
	s.mu.Lock()
	s.fertilizers[f.ID] = f
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetFertilizer(id uint) (domain.Fertilizer, bool, error) {
	s.mu.RLock()
	f, ok := s.fertilizers[id]
	s.mu.RUnlock()
	return f, ok, nil
}

func (s *MemoryStore) DeleteFertilizer(id uint) error {
	s.mu.Lock()
	delete(s.fertilizers, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListFertilizersByUser(userID uint) ([]domain.Fertilizer, error) {
	s.mu.RLock()
	out := make([]domain.Fertilizer, 0)
	for _, f := range s.fertilizers {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].ApplicationDate.After(out[j].ApplicationDate) })
	return out, nil
}

// user files

func (s *MemoryStore) CreateUserFile(f *domain.UserFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = s.allocate("file")
	s.files[f.ID] = *f
	return nil
}

func (s *MemoryStore) SaveUserFile(f domain.UserFile) error {
	s.mu.Lock()
	s.files[f.ID] = f
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetUserFile(id uint) (domain.UserFile, bool, error) {
	s.mu.RLock()
	f, ok := s.files[id]
	s.mu.RUnlock()
	return f, ok, nil
}

func (s *MemoryStore) DeleteUserFile(id uint) error {
	s.mu.Lock()
	delete(s.files, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListUserFiles(f FileFilter) ([]domain.UserFile, error) {
	s.mu.RLock()
	out := make([]domain.UserFile, 0)
	for _, file := range s.files {
		if f.FarmerID != 0 && file.FarmerID != f.FarmerID {
			continue
		}
		if f.AdviserID != 0 && file.AdviserID != f.AdviserID {
			continue
		}
		if f.Category != "" && file.Category != f.Category {
			continue
		}
		out = append(out, file)
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// predictions

func (s *MemoryStore) CreatePrediction(p *domain.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.allocate("prediction")
	s.predictions[p.ID] = *p
	return nil
}

func (s *MemoryStore) SavePrediction(p domain.Prediction) error {
	s.mu.Lock()
	s.predictions[p.ID] = p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetPrediction(id uint) (domain.Prediction, bool, error) {
	s.mu.RLock()
	p, ok := s.predictions[id]
	s.mu.RUnlock()
	return p, ok, nil
}

func (s *MemoryStore) ListPredictions(f PredictionFilter) ([]domain.Prediction, int64, error) {
	s.mu.RLock()
	matched := make([]domain.Prediction, 0, len(s.predictions))
	for _, p := range s.predictions {
		if f.UserID != 0 && p.UserID != f.UserID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		matched = append(matched, p)
	}
	s.mu.RUnlock()
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := int64(len(matched))
	return paginate(matched, f.Page, f.PageSize), total, nil
}

func (s *MemoryStore) CountPredictions() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.predictions)), nil
}

func paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
