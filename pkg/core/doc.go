// Package core defines the shared language of the leaprecord system.
//
// This package contains:
//   - The error taxonomy (ConfigurationError, NotFoundError, ConstraintViolationError,
//     DecodingError, DependencyCycleError)
//   - The storage collaborator contracts (Executor, Transactor)
//   - Static dialect configuration (DialectConfig)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
