package farmsync

import (
	"strings"
	"time"
)

var validSex = map[string]bool{SexFemale: true, SexMale: true}

var validStatus = map[string]bool{
	StatusActive: true,
	StatusSold:   true,
	StatusDead:   true,
	StatusDry:    true,
	StatusSick:   true,
}

// NormalizeDate converts DD/MM/YYYY to YYYY-MM-DD and validates ISO dates.
// The empty string is returned unchanged.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if strings.Contains(s, "/") {
		t, err := time.Parse("2/1/2006", s)
		if err != nil {
			return "", err
		}
		return t.Format("2006-01-02"), nil
	}
	if len(s) > 10 {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}

func normalizeDateField(kind EntityKind, field string, value *string, required bool) error {
	if strings.TrimSpace(*value) == "" {
		if required {
			return &RecordError{Entity: kind, Field: field, Message: "is required"}
		}
		*value = ""
		return nil
	}
	d, err := NormalizeDate(*value)
	if err != nil {
		return &RecordError{Entity: kind, Field: field, Message: "must be YYYY-MM-DD or DD/MM/YYYY"}
	}
	*value = d
	return nil
}

func requireAnimal(kind EntityKind, id int64) error {
	if id <= 0 {
		return &RecordError{Entity: kind, Field: "id_animal", Message: "is required"}
	}
	return nil
}

func (a *Animal) normalize() error {
	a.InternalID = strings.TrimSpace(a.InternalID)
	if a.InternalID == "" {
		return &RecordError{Entity: KindAnimal, Field: "id_interno", Message: "is required"}
	}
	if a.Sex == "" {
		a.Sex = SexFemale
	}
	if !validSex[a.Sex] {
		return &RecordError{Entity: KindAnimal, Field: "sexo", Message: "must be Hembra or Macho"}
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
	if !validStatus[a.Status] {
		return &RecordError{Entity: KindAnimal, Field: "estatus", Message: "must be one of Activa, Vendida, Muerta, Secada, Enferma"}
	}
	return normalizeDateField(KindAnimal, "fecha_nacimiento", &a.BirthDate, false)
}

func (s *BreedingService) normalize() error {
	if err := requireAnimal(KindBreedingService, s.AnimalID); err != nil {
		return err
	}
	return normalizeDateField(KindBreedingService, "fecha_servicio", &s.Date, true)
}

func (d *Diagnostic) normalize() error {
	if err := requireAnimal(KindDiagnostic, d.AnimalID); err != nil {
		return err
	}
	return normalizeDateField(KindDiagnostic, "fecha_diagnostico", &d.Date, true)
}

func (b *Birth) normalize() error {
	if err := requireAnimal(KindBirth, b.AnimalID); err != nil {
		return err
	}
	return normalizeDateField(KindBirth, "fecha_parto", &b.Date, true)
}

func (m *Milking) normalize() error {
	if err := requireAnimal(KindMilking, m.AnimalID); err != nil {
		return err
	}
	if m.TotalLiters == nil && (m.LitersAM != nil || m.LitersPM != nil) {
		var total float64
		if m.LitersAM != nil {
			total += *m.LitersAM
		}
		if m.LitersPM != nil {
			total += *m.LitersPM
		}
		m.TotalLiters = &total
	}
	return normalizeDateField(KindMilking, "fecha_ordena", &m.Date, true)
}

func (t *Treatment) normalize() error {
	if err := requireAnimal(KindTreatment, t.AnimalID); err != nil {
		return err
	}
	if err := normalizeDateField(KindTreatment, "fecha_inicio", &t.StartDate, true); err != nil {
		return err
	}
	return normalizeDateField(KindTreatment, "fecha_fin", &t.EndDate, false)
}

func (d *DryOff) normalize() error {
	if err := requireAnimal(KindDryOff, d.AnimalID); err != nil {
		return err
	}
	if err := normalizeDateField(KindDryOff, "fecha_planeada", &d.PlannedDate, false); err != nil {
		return err
	}
	return normalizeDateField(KindDryOff, "fecha_real", &d.ActualDate, false)
}
