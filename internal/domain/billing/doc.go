// Package billing provides domain models for recurring bills in a multi-tenant
// property-management backend.
//
// The package implements the recurring billing bounded context:
//   - Bill templates (recurring master rows) that describe a billing rule:
//     amount, penalty, recurrence cycle and an anchor date
//   - Concrete bills cloned from a template for one billing period, with a
//     unique bill number, billed period and due date
//   - Cycle arithmetic as a typed enum whose variants know how to advance an
//     anchor date and derive period boundaries
//
// Key Aggregates:
//   - Bill: a single row in the bills table, template or concrete
//
// De-duplication of clones is keyed by (tenant, description, period start);
// at most one concrete bill exists per template and period.
package billing
