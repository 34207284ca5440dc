// Package sink stores reconstructed terminologies in a relational database
// through GORM. It works with the mysql, postgres and sqlite dialects that
// core/database connects to.
//
// Six tables back the model: terminologies, codes, mappings, provenance,
// api_preferences and user_inputs. Creating a terminology and setting a
// mapping each log a provenance entry, the same way an editor's change would.
package sink
