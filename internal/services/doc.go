// Package services holds the error taxonomy and context annotation
// helpers shared by the pipeline stages.
//
// Failures are classified by wrapping them with a typed kind (transient
// service outages, rejected voices, unreadable media, and so on) and
// retry decisions flow from the kind alone. Context helpers stamp job,
// chapter, and stage identifiers onto log records.
package services
