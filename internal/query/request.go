package query

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/HendryAvila/tanagraph/internal/apperr"
)

// Op names one façade operation.
type Op string

const (
	OpListTags      Op = "list_tags"
	OpReadNode      Op = "read_node"
	OpListNodes     Op = "list_nodes_by_tag"
	OpAppendToNode  Op = "append_to_node"
	OpDetectChanges Op = "detect_changes"
	OpConflicts     Op = "conflicts"
)

// Ops lists every operation in a stable order.
var Ops = []Op{OpListTags, OpReadNode, OpListNodes, OpAppendToNode, OpDetectChanges, OpConflicts}

// Request is one of the request types declared in this package. The set is
// closed: the unexported method keeps other packages from adding variants.
type Request interface {
	Op() Op
	common() *Common
}

// Common carries the options every request shares.
type Common struct {
	// Source is the export file path. Empty selects the façade's default
	// source.
	Source string `json:"source,omitempty"`
	// TTL overrides the cache lifetime for this call; zero keeps the
	// default.
	TTL time.Duration `json:"ttl,omitempty" validate:"gte=0"`
	// ForceRefresh reparses the source even when the cached snapshot is
	// fresh.
	ForceRefresh bool `json:"force_refresh,omitempty"`
}

func (c *Common) common() *Common { return c }

// ListTagsRequest lists the tags of a source.
type ListTagsRequest struct {
	Common
	IncludeChains      bool   `json:"include_chains,omitempty"`
	IncludeDirectories bool   `json:"include_directories,omitempty"`
	NameContains       string `json:"name_contains,omitempty"`
	MinUsage           int    `json:"min_usage,omitempty" validate:"gte=0"`
}

// ReadNodeRequest renders one node.
type ReadNodeRequest struct {
	Common
	NodeID          string `json:"node_id" validate:"required"`
	IncludeChildren bool   `json:"include_children,omitempty"`
	// Depth is how many levels of children are rendered when
	// IncludeChildren is set. Zero means one level.
	Depth int `json:"depth,omitempty" validate:"gte=0,lte=20"`
}

// Sort keys accepted by ListNodesRequest.
const (
	SortName     = "name"
	SortCreated  = "created"
	SortModified = "modified"
	SortID       = "id"
)

// ListNodesRequest lists the nodes carrying a tag.
type ListNodesRequest struct {
	Common
	Tag              string `json:"tag" validate:"required"`
	IncludeInherited bool   `json:"include_inherited,omitempty"`
	Offset           int    `json:"offset,omitempty" validate:"gte=0"`
	Limit            int    `json:"limit,omitempty" validate:"gte=0,lte=1000"`
	SortBy           string `json:"sort_by,omitempty" validate:"omitempty,oneof=name created modified id"`
	Order            string `json:"order,omitempty" validate:"omitempty,oneof=asc desc"`
}

// AppendRequest appends content to a node's body.
type AppendRequest struct {
	Common
	NodeID   string `json:"node_id" validate:"required"`
	Content  string `json:"content" validate:"required"`
	Position string `json:"position,omitempty" validate:"omitempty,oneof=start end before_section after_section"`
	Section  string `json:"section,omitempty" validate:"required_if=Position before_section,required_if=Position after_section"`
}

// DetectChangesRequest compares the current tags of a source with the last
// recorded snapshot.
type DetectChangesRequest struct {
	Common
	// DryRun compares without recording the current tags.
	DryRun bool `json:"dry_run,omitempty"`
}

// ConflictsRequest reports inheritance and directory conflicts.
type ConflictsRequest struct {
	Common
}

func (*ListTagsRequest) Op() Op      { return OpListTags }
func (*ReadNodeRequest) Op() Op      { return OpReadNode }
func (*ListNodesRequest) Op() Op     { return OpListNodes }
func (*AppendRequest) Op() Op        { return OpAppendToNode }
func (*DetectChangesRequest) Op() Op { return OpDetectChanges }
func (*ConflictsRequest) Op() Op     { return OpConflicts }

// --- Validation ---

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateRequest checks struct tags and reports the first problems as an
// InvalidRequest error.
func validateRequest(req Request) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperr.Wrap(apperr.InvalidRequest, err, "invalid %s request", req.Op())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.New(apperr.InvalidRequest, "invalid %s request: %s", req.Op(), strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
