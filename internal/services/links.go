package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/models"
)

type LinkService struct {
	store Store
	log   *logrus.Entry
	now   func() time.Time
}

func NewLinkService(store Store, log *logrus.Entry) *LinkService {
	return &LinkService{store: store, log: log, now: time.Now}
}

func (s *LinkService) List(ctx context.Context, activeOnly bool) ([]*models.DirectLink, error) {
	return s.store.ListLinks(ctx, activeOnly)
}

func (s *LinkService) Get(ctx context.Context, id string) (*models.DirectLink, error) {
	return s.store.GetLink(ctx, id)
}

// Create fills unset fields with defaults: the link icon, the general
// category, active, and the next free position.
func (s *LinkService) Create(ctx context.Context, req models.LinkRequest) (*models.DirectLink, error) {
	now := s.now().UTC()
	link := &models.DirectLink{
		ID:             models.GenerateLinkID(now),
		Icon:           models.DefaultLinkIcon,
		Category:       models.LinkCategoryGeneral,
		IsActive:       true,
		RewardPerClick: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	req.Apply(link)

	if req.Position == nil {
		pos, err := s.store.NextLinkPosition(ctx)
		if err != nil {
			return nil, err
		}
		link.Position = pos
	}
	if link.Icon == "" {
		link.Icon = models.DefaultLinkIcon
	}

	if err := link.Validate(); err != nil {
		return nil, ErrInvalidLink.Detail(err.Error())
	}
	if err := s.store.CreateLink(ctx, link); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"link_id": link.ID, "title": link.Title}).Info("Link created")
	return link, nil
}

func (s *LinkService) Update(ctx context.Context, id string, req models.LinkRequest) (*models.DirectLink, error) {
	link, err := s.store.GetLink(ctx, id)
	if err != nil {
		return nil, err
	}

	req.Apply(link)
	link.UpdatedAt = s.now().UTC()

	if err := link.Validate(); err != nil {
		return nil, ErrInvalidLink.Detail(err.Error())
	}
	if err := s.store.UpdateLink(ctx, link); err != nil {
		return nil, err
	}

	return s.store.GetLink(ctx, id)
}

func (s *LinkService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteLink(ctx, id); err != nil {
		return err
	}
	s.log.WithField("link_id", id).Info("Link deleted")
	return nil
}
