package docstore

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/jrife/roost/storage/attachments"
	"github.com/jrife/roost/storage/revtree"
	"github.com/jrife/roost/utils/uuid"
)

// informational members are accepted on input and dropped
var ignoredMembers = map[string]bool{
	"_conflicts":         true,
	"_deleted_conflicts": true,
	"_revs_info":         true,
	"_local_seq":         true,
}

// entry is one parsed BulkDocs input
type entry struct {
	id       string
	local    bool
	newEdits bool
	deleted  bool
	// body holds every non-reserved member
	body Document
	// parent is the revision a new edit is based on
	parent      string
	revisions   map[string]interface{}
	sourceRev   string
	rawAtts     map[string]interface{}
	attachments map[string]attachments.Attachment
	path        revtree.Path
	rev         string
	err         error
}

func idOf(doc Document) string {
	id, _ := doc["_id"].(string)

	return id
}

func validateID(id string) error {
	if strings.HasPrefix(id, "_") && !strings.HasPrefix(id, "_design/") && !strings.HasPrefix(id, localPrefix) {
		return badArg("Only reserved document ids may start with underscore.")
	}

	return nil
}

// parseDocument splits doc into its reserved members and its
// body. Revisions are assigned later by assignRev once the
// attachments have been materialized.
func parseDocument(doc Document, newEdits bool) (*entry, error) {
	e := &entry{newEdits: newEdits, body: Document{}}

	for member, value := range doc {
		if !strings.HasPrefix(member, "_") {
			e.body[member] = value

			continue
		}

		switch member {
		case "_id":
			id, ok := value.(string)

			if !ok {
				return nil, badArg("_id must be a string")
			}

			e.id = id
		case "_rev":
			rev, ok := value.(string)

			if !ok {
				return nil, badArg("Invalid rev format")
			}

			e.sourceRev = rev
		case "_deleted":
			deleted, _ := value.(bool)
			e.deleted = deleted
		case "_revisions":
			revisions, ok := value.(map[string]interface{})

			if !ok {
				return nil, badArg("_revisions must be an object")
			}

			e.revisions = revisions
		case "_attachments":
			if value == nil {
				continue
			}

			atts, ok := value.(map[string]interface{})

			if !ok {
				return nil, badArg("_attachments must be an object")
			}

			e.rawAtts = atts
		default:
			if !ignoredMembers[member] {
				return nil, badArg("Bad special document member: %s", member)
			}
		}
	}

	if e.id == "" {
		if !newEdits {
			return nil, badArg("_id is required for puts")
		}

		e.id = uuid.MustUUID()
	}

	if err := validateID(e.id); err != nil {
		return nil, err
	}

	e.local = isLocal(e.id)

	if newEdits {
		if e.sourceRev != "" {
			if _, _, err := revtree.ParseRev(e.sourceRev); err != nil {
				return nil, badArg("Invalid rev format")
			}

			e.parent = e.sourceRev
		}

		return e, nil
	}

	path, err := replicatedPath(e.revisions, e.sourceRev)

	if err != nil {
		return nil, err
	}

	path.Deleted = e.deleted
	e.path = path
	e.rev = path.Leaf()

	return e, nil
}

// replicatedPath builds the lineage of a document written
// without new edits. _revisions lists hashes newest first.
func replicatedPath(revisions map[string]interface{}, rev string) (revtree.Path, error) {
	if revisions != nil {
		start, ok := revisions["start"].(float64)

		if !ok {
			if n, isInt := revisions["start"].(int); isInt {
				start, ok = float64(n), true
			}
		}

		var ids []interface{}

		switch list := revisions["ids"].(type) {
		case []interface{}:
			ids = list
		case []string:
			for _, id := range list {
				ids = append(ids, id)
			}
		}

		if !ok || len(ids) == 0 || int(start) < len(ids) {
			return revtree.Path{}, badArg("Invalid rev format")
		}

		path := revtree.Path{Pos: int(start) - len(ids) + 1, Status: revtree.StatusAvailable}

		for i := len(ids) - 1; i >= 0; i-- {
			hash, ok := ids[i].(string)

			if !ok || hash == "" {
				return revtree.Path{}, badArg("Invalid rev format")
			}

			path.IDs = append(path.IDs, hash)
		}

		return path, nil
	}

	pos, hash, err := revtree.ParseRev(rev)

	if err != nil {
		return revtree.Path{}, badArg("Invalid rev format")
	}

	return revtree.Path{Pos: pos, IDs: []string{hash}, Status: revtree.StatusAvailable}, nil
}

// assignRev computes the revision of a new edit from its content
// and parent. The same content on the same parent always yields
// the same revision.
func (e *entry) assignRev() error {
	if !e.newEdits {
		return nil
	}

	digests := map[string]string{}

	for name, attachment := range e.attachments {
		digests[name] = attachment.Digest
	}

	canonical, err := json.Marshal(map[string]interface{}{
		"body":        e.body,
		"deleted":     e.deleted,
		"parent":      e.parent,
		"attachments": digests,
	})

	if err != nil {
		return badArg("document is not valid JSON: %s", err)
	}

	sum := md5.Sum(canonical)
	hash := hex.EncodeToString(sum[:])
	path := revtree.Path{Pos: 1, IDs: []string{hash}, Status: revtree.StatusAvailable, Deleted: e.deleted}

	if e.parent != "" {
		pos, parentHash, err := revtree.ParseRev(e.parent)

		if err != nil {
			return badArg("Invalid rev format")
		}

		path.Pos = pos
		path.IDs = []string{parentHash, hash}
	}

	e.path = path
	e.rev = path.Leaf()

	return nil
}

// isRoot returns true if the entry writes a first generation revision
func (e *entry) isRoot() bool {
	return e.path.Pos == 1 && len(e.path.IDs) == 1
}

// attachmentNames lists the entry's attachments in name order
func (e *entry) attachmentNames() []string {
	names := make([]string, 0, len(e.attachments))

	for name := range e.attachments {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
