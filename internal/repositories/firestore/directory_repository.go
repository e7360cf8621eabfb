package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/tolkfield/api/internal/domain"
	pfirestore "github.com/tolkfield/api/internal/platform/firestore"
)

const (
	userCollection      = "users"
	languageCollection  = "languages"
	blacklistCollection = "blacklist"
)

// DirectoryRepository reads users, languages, and blacklists from Firestore.
type DirectoryRepository struct {
	users      *pfirestore.BaseRepository[userDocument]
	languages  *pfirestore.BaseRepository[languageDocument]
	blacklists *pfirestore.BaseRepository[blacklistDocument]
}

// NewDirectoryRepository constructs a Firestore-backed directory repository.
func NewDirectoryRepository(provider *pfirestore.Provider) (*DirectoryRepository, error) {
	if provider == nil {
		return nil, errors.New("directory repository requires firestore provider")
	}

	return &DirectoryRepository{
		users:      pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil),
		languages:  pfirestore.NewBaseRepository[languageDocument](provider, languageCollection, nil, nil),
		blacklists: pfirestore.NewBaseRepository[blacklistDocument](provider, blacklistCollection, nil, nil),
	}, nil
}

// FindUserByID loads the profile by identifier.
func (r *DirectoryRepository) FindUserByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}

	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return toDomainProfile(doc.ID, doc.Data), nil
}

// FindUserByEmail looks the profile up by its unique email address.
func (r *DirectoryRepository) FindUserByEmail(ctx context.Context, email string) (domain.UserProfile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.UserProfile{}, errors.New("email is required")
	}

	docs, err := r.users.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("email", "==", email).Limit(1)
	})
	if err != nil {
		return domain.UserProfile{}, err
	}
	if len(docs) == 0 {
		return domain.UserProfile{}, pfirestore.NewNotFound("users.by_email", errors.New("no user with email"))
	}
	return toDomainProfile(docs[0].ID, docs[0].Data), nil
}

// ListActiveTranslators returns every active translator profile, optionally
// excluding one user.
func (r *DirectoryRepository) ListActiveTranslators(ctx context.Context, excludeUserID string) ([]domain.UserProfile, error) {
	docs, err := r.users.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("role", "==", "translator").
			Where("active", "==", true)
	})
	if err != nil {
		return nil, err
	}

	profiles := make([]domain.UserProfile, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == excludeUserID {
			continue
		}
		profiles = append(profiles, toDomainProfile(doc.ID, doc.Data))
	}
	return profiles, nil
}

// FindLanguage loads a language record by identifier.
func (r *DirectoryRepository) FindLanguage(ctx context.Context, languageID string) (domain.Language, error) {
	if strings.TrimSpace(languageID) == "" {
		return domain.Language{}, errors.New("language id is required")
	}

	doc, err := r.languages.Get(ctx, languageID)
	if err != nil {
		return domain.Language{}, err
	}
	return domain.Language{ID: doc.ID, Name: doc.Data.Name}, nil
}

// ListLanguages returns the full language directory sorted by name.
func (r *DirectoryRepository) ListLanguages(ctx context.Context) ([]domain.Language, error) {
	docs, err := r.languages.Query(ctx, nil)
	if err != nil {
		return nil, err
	}

	languages := make([]domain.Language, 0, len(docs))
	for _, doc := range docs {
		languages = append(languages, domain.Language{ID: doc.ID, Name: doc.Data.Name})
	}
	sort.Slice(languages, func(i, j int) bool {
		return languages[i].Name < languages[j].Name
	})
	return languages, nil
}

// BlacklistedTranslators returns the translator ids the customer excluded.
func (r *DirectoryRepository) BlacklistedTranslators(ctx context.Context, customerID string) ([]string, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, errors.New("customer id is required")
	}

	docs, err := r.blacklists.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("customerId", "==", customerID)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.Data.TranslatorID != "" {
			ids = append(ids, doc.Data.TranslatorID)
		}
	}
	return ids, nil
}

type userDocument struct {
	Email  string `firestore:"email"`
	Name   string `firestore:"name"`
	Mobile string `firestore:"mobile,omitempty"`
	Town   string `firestore:"town,omitempty"`

	Role         string `firestore:"role"`
	ConsumerType string `firestore:"consumerType,omitempty"`

	Gender      string   `firestore:"gender,omitempty"`
	Type        string   `firestore:"translatorType,omitempty"`
	Level       string   `firestore:"translatorLevel,omitempty"`
	LanguageIDs []string `firestore:"languageIds,omitempty"`

	Active             bool `firestore:"active"`
	NotGetEmergency    bool `firestore:"notGetEmergency"`
	NotGetNighttime    bool `firestore:"notGetNighttime"`
	NotGetNotification bool `firestore:"notGetNotification"`
}

type languageDocument struct {
	Name string `firestore:"name"`
}

type blacklistDocument struct {
	CustomerID   string `firestore:"customerId"`
	TranslatorID string `firestore:"translatorId"`
}

func toDomainProfile(id string, doc userDocument) domain.UserProfile {
	return domain.UserProfile{
		ID:           id,
		Email:        doc.Email,
		Name:         doc.Name,
		Mobile:       doc.Mobile,
		Town:         doc.Town,
		ConsumerType: doc.ConsumerType,
		Gender:       domain.Gender(doc.Gender),
		Type:         domain.TranslatorType(doc.Type),
		Level:        domain.TranslatorLevel(doc.Level),
		LanguageIDs:  doc.LanguageIDs,
		Active:       doc.Active,
		Preferences: domain.NotificationPreferences{
			NotGetEmergency:    doc.NotGetEmergency,
			NotGetNighttime:    doc.NotGetNighttime,
			NotGetNotification: doc.NotGetNotification,
		},
	}
}
