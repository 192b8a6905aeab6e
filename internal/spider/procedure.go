package spider

import "strconv"

// Procedure is the integer state code of a record. Codes are grouped by stage
// in blocks of 10000; a non-zero remainder marks a failure sentinel.
type Procedure int

// Procedure codes.
const (
	ProcedureNew                   Procedure = -1
	ProcedureList                  Procedure = 0
	ProcedureDownload              Procedure = 10000
	ProcedureDetail                Procedure = 20000
	ProcedureDetailNotSupport      Procedure = 21000
	ProcedureDetailMissField       Procedure = 22000
	ProcedureClean                 Procedure = 30000
	ProcedureCleanInvalid          Procedure = 31000
	ProcedureResource              Procedure = 40000
	ProcedureResourceDownloadError Procedure = 41000
	ProcedureResourceUploadError   Procedure = 42000
	ProcedurePrepare               Procedure = 50000
	ProcedureStore                 Procedure = 60000
	ProcedureStoreError            Procedure = 61000
)

var procedureNames = map[Procedure]string{
	ProcedureNew:                   "new",
	ProcedureList:                  "list",
	ProcedureDownload:              "download",
	ProcedureDetail:                "detail",
	ProcedureDetailNotSupport:      "detail_not_support",
	ProcedureDetailMissField:       "detail_miss_field",
	ProcedureClean:                 "clean",
	ProcedureCleanInvalid:          "clean_invalid",
	ProcedureResource:              "resource",
	ProcedureResourceDownloadError: "resource_download_error",
	ProcedureResourceUploadError:   "resource_upload_error",
	ProcedurePrepare:               "prepare",
	ProcedureStore:                 "store",
	ProcedureStoreError:            "store_error",
}

// Valid reports whether p is one of the defined codes.
func (p Procedure) Valid() bool {
	_, ok := procedureNames[p]
	return ok
}

// Failed reports whether p is a failure sentinel.
func (p Procedure) Failed() bool {
	return p > 0 && p%10000 != 0
}

// String returns the code's name, or its number when unknown.
func (p Procedure) String() string {
	if name, ok := procedureNames[p]; ok {
		return name
	}
	return strconv.Itoa(int(p))
}

// CanAdvance reports whether a record at from may move to to. Codes never
// move backwards and failure sentinels are terminal.
func CanAdvance(from, to Procedure) bool {
	if !to.Valid() {
		return false
	}
	if from.Failed() {
		return to == from
	}
	return to >= from
}

// Stage returns the stage block of p: 0 for list, 1 for download and so on.
// New records report -1.
func (p Procedure) Stage() int {
	if p < 0 {
		return -1
	}
	return int(p) / 10000
}
