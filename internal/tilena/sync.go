package tilena

import (
	"context"
	"fmt"

	"ayudapo/internal/devops"
	"ayudapo/internal/logging"
)

// Tags is set on every bug created from an email.
var Tags = []string{"Tilena", "AutoCreated", "FromEmail"}

// WorkItemCreator is the part of the DevOps client the sync needs.
type WorkItemCreator interface {
	CreateWorkItem(ctx context.Context, item devops.NewWorkItem) (devops.WorkItem, error)
}

// Result counts one sync run.
type Result struct {
	Found     int
	Processed int
	Errors    int
	Created   []int
}

type Syncer struct {
	mailbox   Mailbox
	creator   WorkItemCreator
	extractor *Extractor
	from      string
	areaPath  string
	log       *logging.Logger
}

// SyncOptions configures a Syncer. AreaPath is usually the DevOps project name.
type SyncOptions struct {
	SenderFilter  string
	TicketBaseURL string
	AreaPath      string
}

func NewSyncer(mailbox Mailbox, creator WorkItemCreator, opts SyncOptions, log *logging.Logger) (*Syncer, error) {
	ex, err := NewExtractor(opts.TicketBaseURL)
	if err != nil {
		return nil, err
	}
	return &Syncer{
		mailbox:   mailbox,
		creator:   creator,
		extractor: ex,
		from:      opts.SenderFilter,
		areaPath:  opts.AreaPath,
		log:       log.Named("tilena"),
	}, nil
}

// Sync turns every unread Tilena email into a Bug. An email is marked seen only after its
// work item was created, so failed ones are retried on the next run.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	uids, err := s.mailbox.Unseen(ctx, s.from)
	if err != nil {
		return Result{}, err
	}
	res := Result{Found: len(uids)}
	if len(uids) == 0 {
		s.log.Info("no new tilena emails")
		return res, nil
	}
	s.log.Info("tilena emails found", "count", len(uids))

	for i, uid := range uids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		id, err := s.process(ctx, uid)
		if err != nil {
			res.Errors++
			s.log.Error("email not processed", "uid", uid, "n", i+1, "error", err)
			continue
		}
		res.Processed++
		res.Created = append(res.Created, id)
	}
	s.log.Info("tilena sync finished", "processed", res.Processed, "errors", res.Errors)
	return res, nil
}

func (s *Syncer) process(ctx context.Context, uid uint32) (int, error) {
	m, err := s.mailbox.Fetch(ctx, uid)
	if err != nil {
		return 0, err
	}
	ticket := s.extractor.Extract(m.Body, m.Subject)
	s.log.Debug("ticket extracted", "uid", uid, "ticket", ticket.ID, "url", ticket.URL)

	wi, err := s.creator.CreateWorkItem(ctx, devops.NewWorkItem{
		Type:        "Bug",
		Title:       ticket.WorkItemTitle(),
		Description: ticket.DescriptionHTML(m.Body),
		Tags:        Tags,
		AreaPath:    s.areaPath,
	})
	if err != nil {
		return 0, fmt.Errorf("create work item for ticket %s: %w", ticket.ID, err)
	}
	if err := s.mailbox.MarkSeen(ctx, uid); err != nil {
		// The bug exists; the email will be picked up again next run.
		return 0, fmt.Errorf("work item %d created but email not marked: %w", wi.ID, err)
	}
	s.log.Info("email processed", "uid", uid, "ticket", ticket.ID, "work_item", wi.ID)
	return wi.ID, nil
}
