package flatten

import (
	"fmt"
	"slices"
	"strings"

	"termsync/core/docstore"
	"termsync/core/keys"
	"termsync/core/walker"
	"termsync/feature/terminology/models"
)

// ReasonMalformedRecord marks a record whose fields have the wrong shape.
const ReasonMalformedRecord = "malformed record"

// userInputSeparator splits a user_input document id into source and target.
const userInputSeparator = "|"

// builder accumulates the entities of one terminology.
type builder struct {
	tid      string
	out      *models.FlattenResult
	term     models.Terminology
	codes    []models.Code
	codeIdx  map[keys.CodeID]int
	mappings []models.Mapping
	mapIdx   map[keys.MappingID]int
}

func flattenTerminology(p *pending) (*models.FlattenResult, error) {
	b := &builder{
		tid:     p.id,
		out:     models.NewFlattenResult(),
		codeIdx: map[keys.CodeID]int{},
		mapIdx:  map[keys.MappingID]int{},
	}

	rawCodes, err := codeSet(p)
	if err != nil {
		return nil, err
	}
	if err := b.terminology(p, rawCodes); err != nil {
		return nil, err
	}
	if err := b.addCodes(rawCodes); err != nil {
		return nil, err
	}

	b.annotate(models.ProvenanceCollection, p.children[models.ProvenanceCollection], b.provenance)
	b.annotate(models.PreferenceCollection, p.children[models.PreferenceCollection], b.preference)
	b.annotate(models.PreferencesCollection, p.children[models.PreferencesCollection], b.preference)
	for _, e := range p.children[models.MappingsCollection] {
		b.mapping(e)
	}
	for _, e := range p.children[models.UserInputCollection] {
		b.userInput(e)
	}

	b.out.Terminologies = append(b.out.Terminologies, b.term)
	b.out.Codes = append(b.out.Codes, b.codes...)
	b.out.Mappings = append(b.out.Mappings, b.mappings...)
	return b.out, nil
}

// codeSet returns the raw code records of a terminology, from its codes
// subcollection when it has one, else from the inline codes field.
func codeSet(p *pending) ([]docstore.Fields, error) {
	if docs, ok := p.children[models.CodesCollection]; ok || slices.Contains(p.subs, models.CodesCollection) {
		out := make([]docstore.Fields, 0, len(docs))
		for _, e := range docs {
			f := e.Fields.Clone()
			if _, ok := f["code"]; !ok {
				f["code"] = docstore.String(e.Ref.ID)
			}
			out = append(out, f)
		}
		return out, nil
	}

	v, ok := p.fields.Lookup(models.CodesCollection)
	if !ok || v.IsNull() {
		return nil, fmt.Errorf("%w: %s", models.ErrMissingCodeSet, p.id)
	}
	items, err := v.AsList()
	if err != nil {
		return nil, fmt.Errorf("terminology %s codes: %w", p.id, err)
	}
	out := make([]docstore.Fields, 0, len(items))
	for i, item := range items {
		f, err := item.AsMap()
		if err != nil {
			return nil, fmt.Errorf("terminology %s codes[%d]: %w", p.id, i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func (b *builder) terminology(p *pending, rawCodes []docstore.Fields) error {
	r := reader{}
	b.term = models.Terminology{
		ID:                     b.tid,
		Name:                   r.text(p.fields, "name"),
		Description:            r.text(p.fields, "description"),
		URL:                    r.text(p.fields, "url"),
		PreferredTerminologies: []string{},
	}
	if b.term.URL == "" && len(rawCodes) > 0 {
		b.term.URL = r.text(rawCodes[0], "system")
	}
	for _, e := range p.children[models.PreferredTermCollection] {
		if e.Ref.ID != models.Self {
			continue
		}
		b.term.PreferredTerminologies = append(b.term.PreferredTerminologies, r.references(e.Fields)...)
	}
	if r.err != nil {
		return fmt.Errorf("terminology %s: %w", b.tid, r.err)
	}
	return nil
}

func (b *builder) addCodes(rawCodes []docstore.Fields) error {
	for i, f := range rawCodes {
		r := reader{}
		c := models.Code{
			TerminologyID: b.tid,
			Code:          keys.Normalize(r.text(f, "code")),
			Display:       r.text(f, "display"),
			Description:   r.text(f, "description"),
			System:        r.text(f, "system"),
		}
		if r.err != nil {
			return fmt.Errorf("terminology %s code %d: %w", b.tid, i, r.err)
		}
		if c.Code != "" {
			id, err := keys.NewCodeID(b.tid, c.Code)
			if err != nil {
				return err
			}
			if _, dup := b.codeIdx[id]; dup {
				b.out.DuplicateCodes++
				continue
			}
			c.CodeID = id
			b.codeIdx[id] = len(b.codes)
		}
		b.codes = append(b.codes, c)
	}
	return nil
}

// annotate resolves each document of a provenance or preference collection to
// the terminology ("self") or to one of its codes and applies fn to it.
func (b *builder) annotate(collection string, entries []walker.Entry, fn func(target annotationTarget, f docstore.Fields) error) {
	for _, e := range entries {
		orphan := func(attempted, reason string) {
			b.out.OrphanCodes = append(b.out.OrphanCodes, models.OrphanCode{
				TerminologyID:   b.tid,
				AttemptedCodeID: attempted,
				Collection:      collection,
				Reason:          reason,
				RawPayload:      e.Fields.Clone(),
			})
		}

		target := annotationTarget{term: &b.term}
		if e.Ref.ID != models.Self {
			id, err := keys.NewCodeID(b.tid, e.Ref.ID)
			if err != nil {
				orphan(b.tid+keys.CodeSeparator+e.Ref.ID, models.ReasonMalformedKey)
				continue
			}
			idx, ok := b.codeIdx[id]
			if !ok {
				orphan(string(id), models.ReasonUnknownCode)
				continue
			}
			target = annotationTarget{code: &b.codes[idx]}
		}

		if err := fn(target, e.Fields); err != nil {
			attempted := models.Self
			if target.code != nil {
				attempted = string(target.code.CodeID)
			}
			orphan(attempted, ReasonMalformedRecord)
		}
	}
}

type annotationTarget struct {
	term *models.Terminology
	code *models.Code
}

func (b *builder) provenance(t annotationTarget, f docstore.Fields) error {
	changes, err := parseChanges(f)
	if err != nil {
		return err
	}
	if t.code != nil {
		t.code.Provenance = append(t.code.Provenance, changes...)
	} else {
		t.term.Provenance = append(t.term.Provenance, changes...)
	}
	return nil
}

func parseChanges(f docstore.Fields) ([]models.ProvenanceChange, error) {
	v, ok := f.Lookup("changes")
	if !ok || v.IsNull() {
		return nil, nil
	}
	items, err := v.AsList()
	if err != nil {
		return nil, fmt.Errorf("changes: %w", err)
	}
	out := make([]models.ProvenanceChange, 0, len(items))
	for i, item := range items {
		m, err := item.AsMap()
		if err != nil {
			return nil, fmt.Errorf("changes[%d]: %w", i, err)
		}
		r := reader{}
		c := models.ProvenanceChange{
			Action:    r.text(m, "action"),
			Editor:    r.text(m, "editor"),
			Timestamp: r.text(m, "timestamp"),
			Target:    r.text(m, "target"),
			NewValue:  m["new_value"].Clone(),
			OldValue:  m["old_value"].Clone(),
		}
		if r.err != nil {
			return nil, fmt.Errorf("changes[%d]: %w", i, r.err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (b *builder) preference(t annotationTarget, f docstore.Fields) error {
	pref, err := parsePreference(f)
	if err != nil {
		return err
	}
	dst := &t.term.APIPreference
	if t.code != nil {
		dst = &t.code.APIPreference
	}
	if *dst == nil {
		*dst = models.APIPreference{}
	}
	for api, ontologies := range pref {
		(*dst)[api] = ontologies
	}
	return nil
}

func parsePreference(f docstore.Fields) (models.APIPreference, error) {
	v, ok := f.Lookup("api_preference")
	if !ok || v.IsNull() {
		return models.APIPreference{}, nil
	}
	m, err := v.AsMap()
	if err != nil {
		return nil, fmt.Errorf("api_preference: %w", err)
	}
	out := make(models.APIPreference, len(m))
	for api, list := range m {
		ontologies, err := list.AsStrings()
		if err != nil {
			return nil, fmt.Errorf("api_preference %s: %w", api, err)
		}
		out[api] = ontologies
	}
	return out, nil
}

// mapping emits one Mapping per target of a mappings document. Source codes
// are not checked here; reconstruction rejects edges whose source is missing.
func (b *builder) mapping(e walker.Entry) {
	r := reader{}
	source := keys.Normalize(r.text(e.Fields, "code"))
	if source == "" {
		source = keys.Normalize(e.Ref.ID)
	}
	editor := r.text(e.Fields, "editor")
	timestamp := r.text(e.Fields, "timestamp")

	var targets []docstore.Value
	if v, ok := e.Fields.Lookup(models.CodesCollection); ok && !v.IsNull() {
		list, err := v.AsList()
		if err != nil && r.err == nil {
			r.err = err
		}
		targets = list
	}
	if r.err != nil {
		b.mappingOrphan(models.MappingsCollection, b.tid+keys.CodeSeparator+source, ReasonMalformedRecord, e.Fields.Clone())
		return
	}

	for _, t := range targets {
		tf, err := t.AsMap()
		if err != nil {
			b.mappingOrphan(models.MappingsCollection, b.tid+keys.CodeSeparator+source, ReasonMalformedRecord,
				docstore.Fields{"code": docstore.String(source), "target": t.Clone()})
			continue
		}
		tr := reader{}
		ref := models.CodeRef{
			Code:        keys.Normalize(tr.text(tf, "code")),
			Display:     tr.text(tf, "display"),
			System:      tr.text(tf, "system"),
			Description: tr.text(tf, "description"),
		}
		raw := docstore.Fields{"code": docstore.String(source), "target": docstore.Map(tf.Clone())}
		if tr.err != nil {
			b.mappingOrphan(models.MappingsCollection, b.tid+keys.CodeSeparator+source, ReasonMalformedRecord, raw)
			continue
		}

		id, err := keys.MappingIDFor(b.tid, source, ref.Code)
		if err != nil {
			attempted := b.tid + keys.CodeSeparator + source + keys.MappingSeparator + b.tid + keys.CodeSeparator + ref.Code
			b.mappingOrphan(models.MappingsCollection, attempted, models.ReasonMalformedKey, raw)
			continue
		}
		if _, dup := b.mapIdx[id]; dup {
			b.out.DuplicateMappings++
			continue
		}
		if ref.System == "" {
			b.out.EmptySystemTargets++
		}
		src, _, _ := keys.ParseMappingID(id)
		b.mapIdx[id] = len(b.mappings)
		b.mappings = append(b.mappings, models.Mapping{
			MappingID:     id,
			TerminologyID: b.tid,
			SourceCodeID:  src,
			SourceCode:    source,
			TargetCodes:   []models.CodeRef{ref},
			UserInput:     []models.UserInput{},
			Editor:        editor,
			Timestamp:     timestamp,
		})
	}
}

// userInput attaches the votes and comments of a user_input document to the
// mapping it names, or records the whole document as an orphan.
func (b *builder) userInput(e walker.Entry) {
	r := reader{}
	source := keys.Normalize(r.text(e.Fields, "code"))
	target := keys.Normalize(r.text(e.Fields, "mapped_code"))
	if source == "" && target == "" {
		source, target, _ = strings.Cut(e.Ref.ID, userInputSeparator)
		source, target = keys.Normalize(source), keys.Normalize(target)
	}
	attempted := b.tid + keys.CodeSeparator + source + keys.MappingSeparator + b.tid + keys.CodeSeparator + target

	inputs, err := parseUserInput(e.Fields)
	if r.err != nil {
		err = r.err
	}
	if err != nil {
		b.mappingOrphan(models.UserInputCollection, attempted, ReasonMalformedRecord, e.Fields.Clone())
		return
	}

	id, err := keys.MappingIDFor(b.tid, source, target)
	if err != nil {
		b.mappingOrphan(models.UserInputCollection, attempted, models.ReasonMalformedKey, e.Fields.Clone())
		return
	}
	idx, ok := b.mapIdx[id]
	if !ok {
		b.mappingOrphan(models.UserInputCollection, string(id), models.ReasonUnknownMapping, e.Fields.Clone())
		return
	}
	b.mappings[idx].UserInput = append(b.mappings[idx].UserInput, inputs...)
}

func parseUserInput(f docstore.Fields) ([]models.UserInput, error) {
	var out []models.UserInput

	if v, ok := f.Lookup(string(models.KindVote)); ok && !v.IsNull() {
		votes, err := v.AsMap()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", models.KindVote, err)
		}
		for _, editor := range votes.Keys() {
			vote, err := votes[editor].AsMap()
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", models.KindVote, editor, err)
			}
			r := reader{}
			in := models.UserInput{
				Kind:      models.KindVote,
				Value:     r.text(vote, "vote"),
				Editor:    editor,
				Timestamp: r.text(vote, "date"),
			}
			if r.err != nil {
				return nil, r.err
			}
			out = append(out, in)
		}
	}

	if v, ok := f.Lookup(string(models.KindConversation)); ok && !v.IsNull() {
		items, err := v.AsList()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", models.KindConversation, err)
		}
		for i, item := range items {
			cnv, err := item.AsMap()
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", models.KindConversation, i, err)
			}
			r := reader{}
			in := models.UserInput{
				Kind:      models.KindConversation,
				Value:     r.text(cnv, "note"),
				Editor:    r.text(cnv, "user_id"),
				Timestamp: r.text(cnv, "date"),
			}
			if r.err != nil {
				return nil, r.err
			}
			out = append(out, in)
		}
	}
	return out, nil
}

func (b *builder) mappingOrphan(collection, attempted, reason string, raw docstore.Fields) {
	b.out.OrphanMappings = append(b.out.OrphanMappings, models.OrphanMapping{
		TerminologyID:      b.tid,
		AttemptedMappingID: attempted,
		Collection:         collection,
		Reason:             reason,
		RawPayload:         raw,
	})
}

// reader projects scalar fields and keeps the first error.
type reader struct {
	err error
}

func (r *reader) text(f docstore.Fields, key string) string {
	s, err := f.Text(key)
	if err != nil && r.err == nil {
		r.err = err
	}
	return s
}

// references reads the "references" list of a preferred_terminology
// document. Items are terminology paths or maps carrying one.
func (r *reader) references(f docstore.Fields) []string {
	v, ok := f.Lookup("references")
	if !ok || v.IsNull() {
		return nil
	}
	items, err := v.AsList()
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("references: %w", err)
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if m, err := item.AsMap(); err == nil {
			ref := r.text(m, "reference")
			if ref == "" {
				ref = r.text(m, "id")
			}
			out = append(out, ref)
			continue
		}
		s, err := item.Text()
		if err != nil {
			if r.err == nil {
				r.err = fmt.Errorf("references: %w", err)
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

