package query

import (
	"context"

	"github.com/HendryAvila/tanagraph/internal/apperr"
	"github.com/HendryAvila/tanagraph/internal/mutation"
)

// AppendToNode hands the request to the mutation engine. The engine takes
// the source lock shared with the cache, so the cached snapshot is dropped
// only when the write succeeds.
func (f *Facade) AppendToNode(ctx context.Context, req *AppendRequest) (*mutation.Result, error) {
	if f.appender == nil {
		return nil, apperr.New(apperr.InvalidRequest, "appending is not enabled").
			WithRemedy("configure a backups directory to enable writes")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	key, err := f.sourceKey(&req.Common)
	if err != nil {
		return nil, err
	}
	return f.appender.Append(ctx, mutation.Request{
		Source:   key,
		NodeID:   req.NodeID,
		Content:  req.Content,
		Position: mutation.Position(req.Position),
		Section:  req.Section,
	})
}
