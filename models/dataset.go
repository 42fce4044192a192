package models

import "time"

// Dataset is implemented by every statistical table that can be bound to a governed screen.
type Dataset interface {
	TableName() string
	GetRecordID() int
	SetRecordID(id int)
	Stamp(userID int, creating bool)
	Meta() *RecordMeta
}

// RecordMeta carries the bookkeeping columns shared by all dataset tables.
type RecordMeta struct {
	RecordID  int       `gorm:"primaryKey;column:record_id" json:"record_id"`
	CreatedBy int       `gorm:"column:created_by" json:"created_by"`
	UpdatedBy int       `gorm:"column:updated_by" json:"updated_by"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (m *RecordMeta) Meta() *RecordMeta { return m }

func (m *RecordMeta) GetRecordID() int { return m.RecordID }

func (m *RecordMeta) SetRecordID(id int) { m.RecordID = id }

// Stamp records who touched the row. CreatedBy is only set on insert.
func (m *RecordMeta) Stamp(userID int, creating bool) {
	if creating {
		m.CreatedBy = userID
	}
	m.UpdatedBy = userID
}

// CensusPopulation is the district population table of the census screen.
type CensusPopulation struct {
	RecordMeta
	CensusYear       int    `gorm:"column:census_year;not null" json:"census_year" binding:"required"`
	DistrictCode     string `gorm:"column:district_code;size:20;not null" json:"district_code" binding:"required"`
	DistrictName     string `gorm:"column:district_name;size:150" json:"district_name"`
	MalePopulation   int64  `gorm:"column:male_population" json:"male_population"`
	FemalePopulation int64  `gorm:"column:female_population" json:"female_population"`
	Households       int64  `gorm:"column:households" json:"households"`
}

func (CensusPopulation) TableName() string { return "census_population" }

// SchoolEnrolment holds enrolment counts per school level.
type SchoolEnrolment struct {
	RecordMeta
	AcademicYear  string `gorm:"column:academic_year;size:9;not null" json:"academic_year" binding:"required"`
	DistrictCode  string `gorm:"column:district_code;size:20;not null" json:"district_code" binding:"required"`
	SchoolLevel   string `gorm:"column:school_level;size:50" json:"school_level"`
	BoysEnrolled  int64  `gorm:"column:boys_enrolled" json:"boys_enrolled"`
	GirlsEnrolled int64  `gorm:"column:girls_enrolled" json:"girls_enrolled"`
	Teachers      int64  `gorm:"column:teachers" json:"teachers"`
}

func (SchoolEnrolment) TableName() string { return "school_enrolment" }

// PrisonPopulation holds inmate counts per correctional facility.
type PrisonPopulation struct {
	RecordMeta
	ReportYear        int    `gorm:"column:report_year;not null" json:"report_year" binding:"required"`
	FacilityName      string `gorm:"column:facility_name;size:150;not null" json:"facility_name" binding:"required"`
	SanctionedCap     int64  `gorm:"column:sanctioned_capacity" json:"sanctioned_capacity"`
	ConvictedInmates  int64  `gorm:"column:convicted_inmates" json:"convicted_inmates"`
	UndertrialInmates int64  `gorm:"column:undertrial_inmates" json:"undertrial_inmates"`
}

func (PrisonPopulation) TableName() string { return "prison_population" }

// PoliceStrength holds sanctioned versus actual police posts.
type PoliceStrength struct {
	RecordMeta
	ReportYear     int    `gorm:"column:report_year;not null" json:"report_year" binding:"required"`
	DistrictCode   string `gorm:"column:district_code;size:20;not null" json:"district_code" binding:"required"`
	Rank           string `gorm:"column:rank;size:60" json:"rank"`
	SanctionedPost int64  `gorm:"column:sanctioned_posts" json:"sanctioned_posts"`
	ActualStrength int64  `gorm:"column:actual_strength" json:"actual_strength"`
}

func (PoliceStrength) TableName() string { return "police_strength" }

// MigrationModels lists every table owned by this service, in dependency order.
func MigrationModels() []any {
	return []any{
		&Role{},
		&User{},
		&WorkflowStatus{},
		&ScreenWorkflowState{},
		&WorkflowAuditEntry{},
		&CensusPopulation{},
		&SchoolEnrolment{},
		&PrisonPopulation{},
		&PoliceStrength{},
	}
}
