// Package models defines the core domain models for Hamori.
//
// # Models
//
//   - Group / GroupMember: a stored dining group and the people in it
//   - Readiness: the derived any-ready / all-ready view of a member set
//   - Tag: a labeled keyword extracted from the user's request
//   - Candidate: a restaurant returned by the place provider
//   - GroupContext: the slice of a Group used to bias search prompts
//
// # Design Principles
//
// 1. **Absent is not zero**: optional provider signals (rating, review count,
// price level, open-now) are pointers so that "not reported" never scores
// like a real zero
// 2. **Derived state is computed**: readiness is always recomputed from the
// member set, never stored
// 3. **Avoid circular references**: use ID strings instead of pointers for relationships
package models
