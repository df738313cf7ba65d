package store

import "time"

// Department is reference data, created from the seed list at first run and
// rarely mutated afterwards.
type Department struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Employee belongs to exactly one department. The ID is a generation-time
// unique token and is never reused.
type Employee struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DepartmentID string `json:"departmentId"`
}

// AttendanceRecord is one punch. Department and employee names are
// denormalized at punch time so history stays attributable even after the
// employee row is deleted or renamed.
//
// Only Timestamp (duplicate-resolution update) and Synced are ever mutated.
type AttendanceRecord struct {
	ID             string    `json:"id"`
	DepartmentID   string    `json:"departmentId"`
	DepartmentName string    `json:"departmentName"`
	EmployeeID     string    `json:"employeeId"`
	EmployeeName   string    `json:"employeeName"`
	Type           string    `json:"type"`
	TypeName       string    `json:"typeName"`
	Timestamp      time.Time `json:"timestamp"`
	Date           string    `json:"date"`
	Synced         bool      `json:"synced"`
}

// Punch types. The ID travels in API requests and duplicate detection; the
// name is what lands in the spreadsheet cell.
const (
	TypeCheckIn  = "checkin"
	TypeCheckOut = "checkout"
	TypeGoOut    = "out"
	TypeReturn   = "return"
)

// PunchTypeNames maps punch type IDs to their display names.
var PunchTypeNames = map[string]string{
	TypeCheckIn:  "出勤",
	TypeCheckOut: "退勤",
	TypeGoOut:    "外出",
	TypeReturn:   "戻り",
}

// ValidPunchType reports whether id is one of the four punch types.
func ValidPunchType(id string) bool {
	_, ok := PunchTypeNames[id]
	return ok
}

// SeedDepartments is the reference department list inserted at first run.
var SeedDepartments = []Department{
	{ID: "doctor", Name: "医師"},
	{ID: "rehabilitation", Name: "リハビリ"},
	{ID: "daycare", Name: "通所介護"},
	{ID: "care1f", Name: "１階介護"},
	{ID: "care2f", Name: "２階介護"},
	{ID: "nursing", Name: "看護"},
	{ID: "office", Name: "事務"},
	{ID: "operations", Name: "業務職員"},
	{ID: "kitchen", Name: "厨房"},
}

// DateKey renders the local-day string used for duplicate detection.
// One key per calendar day in local time.
func DateKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// Settings keys used by the kiosk.
const (
	SettingServiceAccountKey = "googleSheetsServiceAccountKey"
	SettingSpreadsheetID     = "googleSheetsSpreadsheetId"
	SettingAdminPassword     = "adminPassword"
	SettingLastCleanupMonth  = "last_cleanup_month"
)

// DefaultAdminPassword is the PIN assumed when no adminPassword setting has
// been saved.
const DefaultAdminPassword = "0000"
