package farmsync

import (
	"time"

	"github.com/farmsync/farmsync/internal/remote"
)

// Row is one database row keyed by column name. Local and remote rows
// share the representation.
type Row = remote.Row

// EntityKind names a record type. Its value is the remote table name.
type EntityKind string

// Entity kinds in dependency order.
const (
	KindAnimal          EntityKind = "animales"
	KindBreedingService EntityKind = "servicios"
	KindDiagnostic      EntityKind = "diagnosticos"
	KindBirth           EntityKind = "partos"
	KindMilking         EntityKind = "ordenas"
	KindTreatment       EntityKind = "tratamientos"
	KindDryOff          EntityKind = "secados"
)

// SyncStatus is the per-record synchronization state.
type SyncStatus string

const (
	// SyncPending marks a record created or changed since its last successful remote write.
	SyncPending SyncStatus = "pending"
	// SyncSynced marks a record that matches what was last written to or read from the remote store.
	SyncSynced SyncStatus = "synced"
)

// Sex values accepted for Animal.Sex.
const (
	SexFemale = "Hembra"
	SexMale   = "Macho"
)

// Herd status values accepted for Animal.Status.
const (
	StatusActive = "Activa"
	StatusSold   = "Vendida"
	StatusDead   = "Muerta"
	StatusDry    = "Secada"
	StatusSick   = "Enferma"
)

// SyncMeta is the synchronization bookkeeping every record carries.
type SyncMeta struct {
	// LocalID is the local primary key, assigned on insert.
	LocalID int64 `json:"local_id"`
	// RemoteID is the remote primary key, assigned by the first successful
	// upload or download. Never changes once set.
	RemoteID   *int64     `json:"remote_id,omitempty"`
	SyncStatus SyncStatus `json:"sync_status"`
	// SyncKey is a client-generated idempotency key for event records,
	// stored in both databases.
	SyncKey string `json:"sync_key,omitempty"`
}

// Meta returns the record's sync bookkeeping.
func (m *SyncMeta) Meta() *SyncMeta { return m }

// Animal is a head of livestock.
type Animal struct {
	SyncMeta
	// InternalID is the farm's own tag number. Required and unique.
	InternalID         string `json:"id_interno"`
	Name               string `json:"nombre,omitempty"`
	SiniigaID          string `json:"id_siniiga,omitempty"`
	Breed              string `json:"raza,omitempty"`
	BirthDate          string `json:"fecha_nacimiento,omitempty"`
	Sex                string `json:"sexo,omitempty"`
	PhysiologicalState string `json:"estado_fisiologico,omitempty"`
	Status             string `json:"estatus,omitempty"`
	// Photo is a local file reference until uploaded, then a public URL.
	Photo    string `json:"photo,omitempty"`
	Location string `json:"location,omitempty"`
}

// BreedingService records an insemination or natural service.
type BreedingService struct {
	SyncMeta
	AnimalID int64  `json:"id_animal"`
	Date     string `json:"fecha_servicio"`
	Type     string `json:"tipo_servicio,omitempty"`
	Bull     string `json:"toro,omitempty"`
	Notes    string `json:"notas,omitempty"`
}

// Diagnostic records a pregnancy check.
type Diagnostic struct {
	SyncMeta
	AnimalID        int64  `json:"id_animal"`
	Date            string `json:"fecha_diagnostico"`
	Result          string `json:"resultado,omitempty"`
	DaysPostService *int64 `json:"dias_post_servicio,omitempty"`
	Notes           string `json:"notas,omitempty"`
}

// Birth records a calving.
type Birth struct {
	SyncMeta
	AnimalID int64  `json:"id_animal"`
	Date     string `json:"fecha_parto"`
	Number   *int64 `json:"no_parto,omitempty"`
	Problems string `json:"problemas,omitempty"`
	DaysOpen *int64 `json:"dias_abiertos,omitempty"`
}

// Milking records one day's milk yield.
type Milking struct {
	SyncMeta
	AnimalID    int64    `json:"id_animal"`
	Date        string   `json:"fecha_ordena"`
	LitersAM    *float64 `json:"litros_am,omitempty"`
	LitersPM    *float64 `json:"litros_pm,omitempty"`
	TotalLiters *float64 `json:"total_litros,omitempty"`
	DaysInMilk  *int64   `json:"dias_en_leche,omitempty"`
}

// Treatment records a course of medication.
type Treatment struct {
	SyncMeta
	AnimalID    int64  `json:"id_animal"`
	StartDate   string `json:"fecha_inicio"`
	EndDate     string `json:"fecha_fin,omitempty"`
	Description string `json:"descripcion,omitempty"`
	Medication  string `json:"medicamento,omitempty"`
	Dose        string `json:"dosis,omitempty"`
	Frequency   string `json:"frecuencia,omitempty"`
	Notes       string `json:"notas,omitempty"`
}

// DryOff records the end of a lactation.
type DryOff struct {
	SyncMeta
	AnimalID    int64  `json:"id_animal"`
	PlannedDate string `json:"fecha_planeada,omitempty"`
	ActualDate  string `json:"fecha_real,omitempty"`
	Reason      string `json:"motivo,omitempty"`
	Notes       string `json:"notas,omitempty"`
}

// EntityResult counts the outcome of one entity type within a pass.
type EntityResult struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// UploadReport summarizes an upload pass.
type UploadReport struct {
	Success     bool                        `json:"success"`
	TotalSynced int                         `json:"totalSynced"`
	TotalFailed int                         `json:"totalFailed"`
	Details     map[EntityKind]EntityResult `json:"details"`
}

// DownloadResult counts the outcome of one entity type within a download pass.
type DownloadResult struct {
	Downloaded int `json:"downloaded"`
	Failed     int `json:"failed"`
}

// DownloadReport summarizes a download pass.
type DownloadReport struct {
	Success         bool                          `json:"success"`
	TotalDownloaded int                           `json:"totalDownloaded"`
	TotalFailed     int                           `json:"totalFailed"`
	Details         map[EntityKind]DownloadResult `json:"details"`
}

// SyncReport combines an upload pass and the download pass that followed it.
type SyncReport struct {
	Upload   *UploadReport   `json:"upload"`
	Download *DownloadReport `json:"download"`
}

// EntityStats is the row count for one entity type.
type EntityStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
}

// StoreStats describes the local database.
type StoreStats struct {
	Path     string                     `json:"path"`
	Entities map[EntityKind]EntityStats `json:"entities"`
	Pending  int                        `json:"pending"`
	LastSync time.Time                  `json:"last_sync,omitempty"`
}

// HealthStatus reports the state of the local store and remote connectivity.
type HealthStatus struct {
	Healthy         bool   `json:"healthy"`
	StoreOK         bool   `json:"store_ok"`
	RemoteReachable bool   `json:"remote_reachable"`
	Error           string `json:"error,omitempty"`
}
