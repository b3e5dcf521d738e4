package service

import (
	"context"
	"errors"

	"podcast-api/internal/media"
	"podcast-api/internal/models"
	"podcast-api/internal/policy"
	"podcast-api/internal/storage"
	"podcast-api/internal/validation"
)

// EpisodeInput is the payload of an episode create or update. For updates a
// nil field is left unchanged.
type EpisodeInput struct {
	Titre       *string
	Description *string
	Audio       *Attachment
}

// EpisodeSearch holds the optional search filters. Podcast matches the
// parent podcast title and Animateur its owner's name.
type EpisodeSearch struct {
	Titre     string
	Podcast   string
	Animateur string
}

type EpisodeService struct {
	*base
}

type episodeCreateRules struct {
	Titre       string `json:"titre" validate:"required,max=255"`
	Description string `json:"description" validate:"omitempty,min=10"`
	Audio       string `json:"audio" validate:"omitempty,url"`
}

type episodeUpdateRules struct {
	Titre       *string `json:"titre" validate:"omitnil,min=1,max=255"`
	Description string  `json:"description" validate:"omitempty,min=10"`
	Audio       string  `json:"audio" validate:"omitempty,url"`
}

// ListByPodcast returns the episodes of podcastID, or ErrNotFound when the
// podcast does not exist.
func (s *EpisodeService) ListByPodcast(ctx context.Context, actor *models.User, podcastID string) ([]models.Episode, error) {
	podcast, err := s.repo.GetPodcast(ctx, podcastID)
	if err != nil {
		return nil, storeErr("list episodes", err)
	}
	if err := s.authorize(ctx, actor, policy.ListEpisodes, policy.Target{Podcast: &podcast}); err != nil {
		return nil, err
	}
	episodes, err := s.repo.ListEpisodes(ctx, storage.EpisodeFilter{PodcastID: podcast.ID})
	return episodes, storeErr("list episodes", err)
}

func (s *EpisodeService) Search(ctx context.Context, actor *models.User, search EpisodeSearch) ([]models.Episode, error) {
	if err := s.authorize(ctx, actor, policy.ListEpisodes, policy.Target{}); err != nil {
		return nil, err
	}
	episodes, err := s.repo.ListEpisodes(ctx, storage.EpisodeFilter{
		Titre:     search.Titre,
		Podcast:   search.Podcast,
		Animateur: search.Animateur,
	})
	return episodes, storeErr("search episodes", err)
}

func (s *EpisodeService) Get(ctx context.Context, actor *models.User, id string) (models.Episode, error) {
	episode, err := s.repo.GetEpisode(ctx, id)
	if err != nil {
		return models.Episode{}, storeErr("get episode", err)
	}
	if err := s.authorize(ctx, actor, policy.ViewEpisode, policy.Target{Episode: &episode}); err != nil {
		return models.Episode{}, err
	}
	return episode, nil
}

// AuthorizeCreate resolves podcastID and checks the Create permission alone.
func (s *EpisodeService) AuthorizeCreate(ctx context.Context, actor *models.User, podcastID string) error {
	podcast, err := s.repo.GetPodcast(ctx, podcastID)
	if err != nil {
		return storeErr("create episode", err)
	}
	return s.precheck(ctx, actor, policy.CreateEpisode, policy.Target{Podcast: &podcast})
}

// Create adds an episode to podcastID. Audio is required, either as an
// uploaded file or as a URL.
func (s *EpisodeService) Create(ctx context.Context, actor *models.User, podcastID string, input EpisodeInput) (models.Episode, error) {
	podcast, err := s.repo.GetPodcast(ctx, podcastID)
	if err != nil {
		return models.Episode{}, storeErr("create episode", err)
	}
	if err := s.authorize(ctx, actor, policy.CreateEpisode, policy.Target{Podcast: &podcast}); err != nil {
		return models.Episode{}, err
	}

	rules := episodeCreateRules{
		Titre:       deref(trimmed(input.Titre)),
		Description: deref(trimmed(input.Description)),
	}
	if input.Audio != nil && input.Audio.File == nil {
		rules.Audio = input.Audio.URL
	}
	fields, err := validation.Struct(rules, episodeMessages)
	if err != nil {
		return models.Episode{}, err
	}
	if !input.Audio.present() {
		fields.Add("audio", msgAudioRequired)
	}
	checkAttachment(fields, "audio", media.KindAudio, input.Audio)
	if err := invalid(fields); err != nil {
		return models.Episode{}, err
	}

	audio, err := s.attachmentURL(ctx, media.KindAudio, input.Audio)
	if err != nil {
		return models.Episode{}, err
	}

	episode, err := s.repo.CreateEpisode(ctx, storage.CreateEpisodeParams{
		Titre:       rules.Titre,
		Description: rules.Description,
		Audio:       audio,
		PodcastID:   podcast.ID,
	})
	if err != nil {
		return models.Episode{}, storeErr("create episode", err)
	}
	s.logger.InfoContext(ctx, "episode created", "episode_id", episode.ID, "podcast_id", podcast.ID, "user_id", actor.ID)
	return episode, nil
}

func (s *EpisodeService) Update(ctx context.Context, actor *models.User, id string, input EpisodeInput) (models.Episode, error) {
	episode, parent, err := s.resolve(ctx, id)
	if err != nil {
		return models.Episode{}, storeErr("update episode", err)
	}
	if err := s.authorize(ctx, actor, policy.UpdateEpisode, policy.Target{Episode: &episode, EpisodePodcast: parent}); err != nil {
		return models.Episode{}, err
	}

	update := storage.EpisodeUpdate{
		Titre:       trimmed(input.Titre),
		Description: trimmed(input.Description),
	}
	rules := episodeUpdateRules{
		Titre:       update.Titre,
		Description: deref(update.Description),
	}
	if input.Audio != nil && input.Audio.File == nil {
		rules.Audio = input.Audio.URL
	}
	fields, err := validation.Struct(rules, episodeMessages)
	if err != nil {
		return models.Episode{}, err
	}
	checkAttachment(fields, "audio", media.KindAudio, input.Audio)
	if err := invalid(fields); err != nil {
		return models.Episode{}, err
	}

	if input.Audio.present() {
		url, err := s.attachmentURL(ctx, media.KindAudio, input.Audio)
		if err != nil {
			return models.Episode{}, err
		}
		update.Audio = &url
	}

	updated, err := s.repo.UpdateEpisode(ctx, episode.ID, update)
	if err != nil {
		return models.Episode{}, storeErr("update episode", err)
	}
	return updated, nil
}

func (s *EpisodeService) Delete(ctx context.Context, actor *models.User, id string) error {
	episode, parent, err := s.resolve(ctx, id)
	if err != nil {
		return storeErr("delete episode", err)
	}
	if err := s.authorize(ctx, actor, policy.DeleteEpisode, policy.Target{Episode: &episode, EpisodePodcast: parent}); err != nil {
		return err
	}
	if err := s.repo.DeleteEpisode(ctx, episode.ID); err != nil {
		return storeErr("delete episode", err)
	}
	s.logger.InfoContext(ctx, "episode deleted", "episode_id", episode.ID, "user_id", actor.ID)
	return nil
}

// resolve loads an episode and its parent podcast. A missing parent is
// returned as nil so the policy can deny the orphan.
func (s *EpisodeService) resolve(ctx context.Context, id string) (models.Episode, *models.Podcast, error) {
	episode, err := s.repo.GetEpisode(ctx, id)
	if err != nil {
		return models.Episode{}, nil, err
	}
	podcast, err := s.repo.GetPodcast(ctx, episode.PodcastID)
	if errors.Is(err, storage.ErrNotFound) {
		return episode, nil, nil
	}
	if err != nil {
		return models.Episode{}, nil, err
	}
	return episode, &podcast, nil
}
