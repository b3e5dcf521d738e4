package service

import (
	"context"

	"podcast-api/internal/media"
	"podcast-api/internal/models"
	"podcast-api/internal/policy"
	"podcast-api/internal/storage"
	"podcast-api/internal/validation"
)

// PodcastInput is the payload of a podcast create or update. For updates a
// nil field is left unchanged; for creates it is treated as empty.
type PodcastInput struct {
	Titre       *string
	Categorie   *string
	Description *string
	Image       *Attachment
}

// PodcastSearch holds the optional search filters. Empty fields are ignored.
type PodcastSearch struct {
	Titre     string
	Categorie string
	Animateur string
}

type PodcastService struct {
	*base
}

type podcastCreateRules struct {
	Titre       string `json:"titre" validate:"required,max=255"`
	Categorie   string `json:"categorie" validate:"required,max=100"`
	Description string `json:"description" validate:"omitempty,min=10"`
	Image       string `json:"image" validate:"omitempty,url"`
}

type podcastUpdateRules struct {
	Titre       *string `json:"titre" validate:"omitnil,min=1,max=255"`
	Categorie   *string `json:"categorie" validate:"omitnil,min=1,max=100"`
	Description string  `json:"description" validate:"omitempty,min=10"`
	Image       string  `json:"image" validate:"omitempty,url"`
}

func (s *PodcastService) List(ctx context.Context, actor *models.User) ([]models.Podcast, error) {
	if err := s.authorize(ctx, actor, policy.ListPodcasts, policy.Target{}); err != nil {
		return nil, err
	}
	podcasts, err := s.repo.ListPodcasts(ctx, storage.PodcastFilter{})
	return podcasts, storeErr("list podcasts", err)
}

func (s *PodcastService) Search(ctx context.Context, actor *models.User, search PodcastSearch) ([]models.Podcast, error) {
	if err := s.authorize(ctx, actor, policy.ListPodcasts, policy.Target{}); err != nil {
		return nil, err
	}
	podcasts, err := s.repo.ListPodcasts(ctx, storage.PodcastFilter{
		Titre:     search.Titre,
		Categorie: search.Categorie,
		Animateur: search.Animateur,
	})
	return podcasts, storeErr("search podcasts", err)
}

func (s *PodcastService) Get(ctx context.Context, actor *models.User, id string) (models.Podcast, error) {
	podcast, err := s.repo.GetPodcast(ctx, id)
	if err != nil {
		return models.Podcast{}, storeErr("get podcast", err)
	}
	if err := s.authorize(ctx, actor, policy.ViewPodcast, policy.Target{Podcast: &podcast}); err != nil {
		return models.Podcast{}, err
	}
	return podcast, nil
}

// AuthorizeCreate checks the Create permission alone, letting the HTTP layer
// refuse a caller before reading an upload.
func (s *PodcastService) AuthorizeCreate(ctx context.Context, actor *models.User) error {
	return s.precheck(ctx, actor, policy.CreatePodcast, policy.Target{})
}

// Create stores a podcast owned by actor.
func (s *PodcastService) Create(ctx context.Context, actor *models.User, input PodcastInput) (models.Podcast, error) {
	if err := s.authorize(ctx, actor, policy.CreatePodcast, policy.Target{}); err != nil {
		return models.Podcast{}, err
	}

	rules := podcastCreateRules{
		Titre:       deref(trimmed(input.Titre)),
		Categorie:   deref(trimmed(input.Categorie)),
		Description: deref(trimmed(input.Description)),
	}
	if input.Image != nil && input.Image.File == nil {
		rules.Image = input.Image.URL
	}
	if err := s.validate(rules, input.Image); err != nil {
		return models.Podcast{}, err
	}

	var image string
	if input.Image.present() {
		url, err := s.attachmentURL(ctx, media.KindImage, input.Image)
		if err != nil {
			return models.Podcast{}, err
		}
		image = url
	}

	podcast, err := s.repo.CreatePodcast(ctx, storage.CreatePodcastParams{
		Titre:       rules.Titre,
		Categorie:   rules.Categorie,
		Description: rules.Description,
		Image:       image,
		UserID:      actor.ID,
	})
	if err != nil {
		return models.Podcast{}, storeErr("create podcast", err)
	}
	s.logger.InfoContext(ctx, "podcast created", "podcast_id", podcast.ID, "user_id", actor.ID)
	return podcast, nil
}

func (s *PodcastService) Update(ctx context.Context, actor *models.User, id string, input PodcastInput) (models.Podcast, error) {
	podcast, err := s.repo.GetPodcast(ctx, id)
	if err != nil {
		return models.Podcast{}, storeErr("update podcast", err)
	}
	if err := s.authorize(ctx, actor, policy.UpdatePodcast, policy.Target{Podcast: &podcast}); err != nil {
		return models.Podcast{}, err
	}

	update := storage.PodcastUpdate{
		Titre:       trimmed(input.Titre),
		Categorie:   trimmed(input.Categorie),
		Description: trimmed(input.Description),
	}
	rules := podcastUpdateRules{
		Titre:       update.Titre,
		Categorie:   update.Categorie,
		Description: deref(update.Description),
	}
	if input.Image != nil && input.Image.File == nil {
		rules.Image = input.Image.URL
	}
	if err := s.validate(rules, input.Image); err != nil {
		return models.Podcast{}, err
	}

	if input.Image.present() {
		url, err := s.attachmentURL(ctx, media.KindImage, input.Image)
		if err != nil {
			return models.Podcast{}, err
		}
		update.Image = &url
	}

	updated, err := s.repo.UpdatePodcast(ctx, podcast.ID, update)
	if err != nil {
		return models.Podcast{}, storeErr("update podcast", err)
	}
	return updated, nil
}

func (s *PodcastService) Delete(ctx context.Context, actor *models.User, id string) error {
	podcast, err := s.repo.GetPodcast(ctx, id)
	if err != nil {
		return storeErr("delete podcast", err)
	}
	if err := s.authorize(ctx, actor, policy.DeletePodcast, policy.Target{Podcast: &podcast}); err != nil {
		return err
	}
	if err := s.repo.DeletePodcast(ctx, podcast.ID); err != nil {
		return storeErr("delete podcast", err)
	}
	s.logger.InfoContext(ctx, "podcast deleted", "podcast_id", podcast.ID, "user_id", actor.ID)
	return nil
}

func (s *PodcastService) validate(rules any, image *Attachment) error {
	fields, err := validation.Struct(rules, podcastMessages)
	if err != nil {
		return err
	}
	checkAttachment(fields, "image", media.KindImage, image)
	return invalid(fields)
}
