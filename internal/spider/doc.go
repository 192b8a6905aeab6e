// Package spider defines the work record model, procedure codes, stage errors
// and the collaborator interfaces shared by the pipeline stages, the scheduler
// and the storage/queue backends.
package spider
