// Package reconstruct replays flattened terminology entities into a
// DomainModel.
//
// Replay runs in five phases: terminologies, codes, mappings, provenance and
// finally API preferences with user input. Later phases assume the entities
// of earlier phases exist, so each phase finishes for every terminology
// before the next begins.
//
// Failures are isolated. A mapping whose source code is missing is rejected
// with kind CodeNotPresent and the run continues. A terminology whose
// creation or codes fail is skipped in the remaining phases. Orphans from the
// flatten result are handed back in the Report and never written.
package reconstruct
