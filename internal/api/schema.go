// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/auth"
	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/fitness"
	"github.com/shelfwatch/shelfwatch/internal/jobs"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/progress"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

// Version is stamped at build time through -ldflags.
var Version = "dev"

// Stable error code strings per the error model; the GraphQL message
// leads with the code so clients can switch on it.
func codeFor(err error) string {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return "NotFound"
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserDisabled):
		return "Unauthenticated"
	case errors.Is(err, auth.ErrSessionExpired):
		return "SessionExpired"
	case errors.Is(err, auth.ErrTwoFactorRequired):
		return "TwoFactorRequired"
	case errors.Is(err, auth.ErrTwoFactorInvalid):
		return "TwoFactorInvalid"
	case errors.Is(err, progress.ErrNoInProgress):
		return "NoInProgress"
	case errors.Is(err, progress.ErrAlreadyInProgress):
		return "InProgressAlreadyExists"
	case errors.Is(err, progress.ErrInvalidAddressing):
		return "InvalidProgressAddressing"
	case errors.Is(err, fitness.ErrInvalidStatistic):
		return "InvalidInput"
	case errors.Is(err, providers.ErrNotFoundByProvider):
		return "ProviderNotFound"
	case errors.Is(err, providers.ErrProviderUnavailable):
		return "ProviderUnavailable"
	case errors.Is(err, providers.ErrUnsupportedOperation):
		return "InvalidInput"
	default:
		return "Internal"
	}
}

func gqlError(err error) error {
	return fmt.Errorf("%s: %s", codeFor(err), err)
}

var errUnauthenticated = errors.New("Unauthenticated: a valid session token is required")
var errAdminOnly = errors.New("AdminOnly: this operation requires an admin account")

// requireUserID extracts the authenticated user or fails the resolver.
func requireUserID(ctx context.Context) (string, error) {
	if id := currentUserID(ctx); id != "" {
		return id, nil
	}
	return "", errUnauthenticated
}

func optString(args map[string]any, key string) *string {
	if v, ok := args[key].(string); ok && v != "" {
		return &v
	}
	return nil
}

func optInt(args map[string]any, key string) *int {
	if v, ok := args[key].(int); ok {
		return &v
	}
	return nil
}

func optDecimal(args map[string]any, key string) *decimal.Decimal {
	if v, ok := args[key].(float64); ok {
		d := decimal.NewFromFloat(v)
		return &d
	}
	return nil
}

func optTime(args map[string]any, key string) (*time.Time, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("InvalidInput: cannot parse time %q", v)
}

func (s *Server) buildSchema() (graphql.Schema, error) {
	userType := graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"name":       &graphql.Field{Type: graphql.String},
			"lot":        &graphql.Field{Type: graphql.String},
			"isDisabled": &graphql.Field{Type: graphql.Boolean, Resolve: fieldOf(func(u *models.User) any { return u.IsDisabled })},
		},
	})

	loginResultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LoginResult",
		Fields: graphql.Fields{
			"userId":            &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(r *auth.LoginResult) any { return r.UserID })},
			"token":             &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(r *auth.LoginResult) any { return r.Token })},
			"twoFactorRequired": &graphql.Field{Type: graphql.Boolean, Resolve: fieldOf(func(r *auth.LoginResult) any { return r.TwoFactorRequired })},
		},
	})

	collectionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Collection",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"name":        &graphql.Field{Type: graphql.String},
			"description": &graphql.Field{Type: graphql.String},
		},
	})

	seenType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Seen",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"metadataId": &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(s *models.Seen) any { return s.MetadataID })},
			"state":      &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(s *models.Seen) any { return string(s.State) })},
			"progress":   &graphql.Field{Type: graphql.Float, Resolve: fieldOf(func(s *models.Seen) any { return s.Progress.InexactFloat64() })},
		},
	})

	workoutType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Workout",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.String},
			"name":     &graphql.Field{Type: graphql.String},
			"duration": &graphql.Field{Type: graphql.Int, Resolve: fieldOf(func(w *models.Workout) any { return w.Duration })},
		},
	})

	activityType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DailyUserActivity",
		Fields: graphql.Fields{
			"date":          &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(a *models.DailyUserActivity) any { return a.Date.Format("2006-01-02") })},
			"totalCount":    &graphql.Field{Type: graphql.Int, Resolve: fieldOf(func(a *models.DailyUserActivity) any { return a.TotalCount })},
			"totalDuration": &graphql.Field{Type: graphql.Int, Resolve: fieldOf(func(a *models.DailyUserActivity) any { return a.TotalDuration })},
			"movieCount":    &graphql.Field{Type: graphql.Int, Resolve: fieldOf(func(a *models.DailyUserActivity) any { return a.MovieCount })},
			"showCount":     &graphql.Field{Type: graphql.Int, Resolve: fieldOf(func(a *models.DailyUserActivity) any { return a.ShowCount })},
			"bookCount":     &graphql.Field{Type: graphql.Int, Resolve: fieldOf(func(a *models.DailyUserActivity) any { return a.BookCount })},
			"workoutCount":  &graphql.Field{Type: graphql.Int, Resolve: fieldOf(func(a *models.DailyUserActivity) any { return a.WorkoutCount })},
		},
	})

	workoutSetInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "WorkoutSetInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"lot":      &graphql.InputObjectFieldConfig{Type: graphql.String, DefaultValue: "normal"},
			"reps":     &graphql.InputObjectFieldConfig{Type: graphql.Float},
			"weight":   &graphql.InputObjectFieldConfig{Type: graphql.Float},
			"duration": &graphql.InputObjectFieldConfig{Type: graphql.Float},
			"distance": &graphql.InputObjectFieldConfig{Type: graphql.Float},
			"restTime": &graphql.InputObjectFieldConfig{Type: graphql.Int},
		},
	})
	workoutExerciseInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "WorkoutExerciseInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"exerciseId": &graphql.InputObjectFieldConfig{Type: graphql.String},
			"name":       &graphql.InputObjectFieldConfig{Type: graphql.String},
			"lot":        &graphql.InputObjectFieldConfig{Type: graphql.String},
			"sets":       &graphql.InputObjectFieldConfig{Type: graphql.NewList(workoutSetInput)},
		},
	})

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"coreDetails": &graphql.Field{
				Type: graphql.NewObject(graphql.ObjectConfig{
					Name: "CoreDetails",
					Fields: graphql.Fields{
						"version": &graphql.Field{Type: graphql.String},
					},
				}),
				Resolve: func(graphql.ResolveParams) (any, error) {
					return map[string]any{"version": Version}, nil
				},
			},
			"userDetails": &graphql.Field{
				Type: userType,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					userID, err := requireUserID(p.Context)
					if err != nil {
						return nil, err
					}
					user, err := s.store.GetUser(p.Context, userID)
					if err != nil {
						return nil, gqlError(err)
					}
					return user, nil
				},
			},
			"userCollections": &graphql.Field{
				Type: graphql.NewList(collectionType),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					userID, err := requireUserID(p.Context)
					if err != nil {
						return nil, err
					}
					key := cache.UserCollectionsListKey(userID)
					if cached, ok := s.memCache.GetValue(key); ok {
						return cached, nil
					}
					collections, err := s.store.ListUserCollections(p.Context, userID)
					if err != nil {
						return nil, gqlError(err)
					}
					s.memCache.SetKey(key, collections)
					return collections, nil
				},
			},
			"dailyUserActivities": &graphql.Field{
				Type: graphql.NewList(activityType),
				Args: graphql.FieldConfigArgument{
					"from":    &graphql.ArgumentConfig{Type: graphql.String},
					"to":      &graphql.ArgumentConfig{Type: graphql.String},
					"groupBy": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					userID, err := requireUserID(p.Context)
					if err != nil {
						return nil, err
					}
					from, err := optTime(p.Args, "from")
					if err != nil {
						return nil, err
					}
					to, err := optTime(p.Args, "to")
					if err != nil {
						return nil, err
					}
					var fromAt, toAt time.Time
					if from != nil {
						fromAt = *from
					}
					if to != nil {
						toAt = *to
					}
					groupBy, _ := p.Args["groupBy"].(string)
					rows, err := s.activity.DailyUserActivities(p.Context, userID, fromAt, toAt, models.ActivityGroupBy(groupBy))
					if err != nil {
						return nil, gqlError(err)
					}
					return rows, nil
				},
			},
			"metadataSearch":      s.metadataSearchField(),
			"trendingMetadata":    s.trendingMetadataField(),
			"genreList":           s.genreListField(),
			"metadataTranslation": s.metadataTranslationField(),
			"metadataDetails":     s.metadataDetailsField(),
			"userMetadataDetails": s.userMetadataDetailsField(),
			"latestUserSummary": &graphql.Field{
				Type: activityType,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					userID, err := requireUserID(p.Context)
					if err != nil {
						return nil, err
					}
					summary, err := s.activity.LatestUserSummary(p.Context, userID)
					if err != nil {
						return nil, gqlError(err)
					}
					return summary, nil
				},
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"registerUser": &graphql.Field{
				Type: userType,
				Args: graphql.FieldConfigArgument{
					"username": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"password": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					req := registerRequest{
						Username: p.Args["username"].(string),
						Password: p.Args["password"].(string),
					}
					if err := validateInput(req); err != nil {
						return nil, err
					}
					user, err := s.auth.Register(p.Context, req.Username, req.Password)
					if err != nil {
						return nil, gqlError(err)
					}
					return user, nil
				},
			},
			"loginUser": &graphql.Field{
				Type: loginResultType,
				Args: graphql.FieldConfigArgument{
					"username": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"password": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					result, err := s.auth.Login(p.Context, p.Args["username"].(string), p.Args["password"].(string))
					if err != nil {
						return nil, gqlError(err)
					}
					return result, nil
				},
			},
			"completeTwoFactor": &graphql.Field{
				Type: loginResultType,
				Args: graphql.FieldConfigArgument{
					"userId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"code":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					result, err := s.auth.CompleteTwoFactor(p.Context, p.Args["userId"].(string), p.Args["code"].(string))
					if err != nil {
						return nil, gqlError(err)
					}
					return result, nil
				},
			},
			"initiateTwoFactorSetup": &graphql.Field{
				Type: graphql.NewObject(graphql.ObjectConfig{
					Name: "TwoFactorSetup",
					Fields: graphql.Fields{
						"secret":      &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(s *auth.TwoFactorSetup) any { return s.Secret })},
						"otpauthUrl":  &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(s *auth.TwoFactorSetup) any { return s.OtpauthURL })},
						"backupCodes": &graphql.Field{Type: graphql.NewList(graphql.String), Resolve: fieldOf(func(s *auth.TwoFactorSetup) any { return s.BackupCodes })},
					},
				}),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					userID, err := requireUserID(p.Context)
					if err != nil {
						return nil, err
					}
					setup, err := s.auth.InitiateTwoFactor(p.Context, userID)
					if err != nil {
						return nil, gqlError(err)
					}
					return setup, nil
				},
			},
			"finishTwoFactorSetup": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"code": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					userID, err := requireUserID(p.Context)
					if err != nil {
						return nil, err
					}
					if err := s.auth.FinishTwoFactorSetup(p.Context, userID, p.Args["code"].(string)); err != nil {
						return nil, gqlError(err)
					}
					return true, nil
				},
			},
			"disableTwoFactor": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					userID, err := requireUserID(p.Context)
					if err != nil {
						return nil, err
					}
					if err := s.auth.DisableTwoFactor(p.Context, userID); err != nil {
						return nil, gqlError(err)
					}
					return true, nil
				},
			},
			"deployProgressUpdate": &graphql.Field{
				Type: seenType,
				Args: graphql.FieldConfigArgument{
					"metadataId":           &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"progress":             &graphql.ArgumentConfig{Type: graphql.Float},
					"completed":            &graphql.ArgumentConfig{Type: graphql.Boolean},
					"showSeasonNumber":     &graphql.ArgumentConfig{Type: graphql.Int},
					"showEpisodeNumber":    &graphql.ArgumentConfig{Type: graphql.Int},
					"podcastEpisodeNumber": &graphql.ArgumentConfig{Type: graphql.Int},
					"providerWatchedOn":    &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: s.resolveProgressUpdate,
			},
			"deleteSeenItem": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"seenId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					userID, err := requireUserID(p.Context)
					if err != nil {
						return nil, err
					}
					if err := s.progress.DeleteSeen(p.Context, userID, p.Args["seenId"].(string)); err != nil {
						return nil, gqlError(err)
					}
					return true, nil
				},
			},
			"createOrUpdateUserWorkout": &graphql.Field{
				Type: workoutType,
				Args: graphql.FieldConfigArgument{
					"id":        &graphql.ArgumentConfig{Type: graphql.String},
					"name":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"startTime": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"endTime":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"comment":   &graphql.ArgumentConfig{Type: graphql.String},
					"exercises": &graphql.ArgumentConfig{Type: graphql.NewList(workoutExerciseInput)},
				},
				Resolve: s.resolveCreateWorkout,
			},
			"mergeExercise": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"fromId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"intoId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					userID, err := requireUserID(p.Context)
					if err != nil {
						return nil, err
					}
					if err := s.fitness.MergeExercise(p.Context, userID, p.Args["fromId"].(string), p.Args["intoId"].(string)); err != nil {
						return nil, gqlError(err)
					}
					return true, nil
				},
			},
			"postReview": &graphql.Field{
				Type: graphql.String,
				Args: graphql.FieldConfigArgument{
					"entityId":          &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"rating":            &graphql.ArgumentConfig{Type: graphql.Float},
					"text":              &graphql.ArgumentConfig{Type: graphql.String},
					"visibility":        &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: "public"},
					"isSpoiler":         &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
					"showSeasonNumber":  &graphql.ArgumentConfig{Type: graphql.Int},
					"showEpisodeNumber": &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: s.resolvePostReview,
			},
			"addEntityToCollection": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"collectionName": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"entityId":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: s.resolveAddToCollection,
			},
			"removeEntityFromCollection": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"collectionName": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"entityId":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					userID, err := requireUserID(p.Context)
					if err != nil {
						return nil, err
					}
					collection, err := s.store.GetCollectionByName(p.Context, userID, p.Args["collectionName"].(string))
					if err != nil {
						return nil, gqlError(err)
					}
					if err := s.store.RemoveEntityFromCollection(p.Context, collection.ID, p.Args["entityId"].(string)); err != nil {
						return nil, gqlError(err)
					}
					return true, nil
				},
			},
			"reorderCollectionEntity": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"collectionName": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"entityId":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"rank":           &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					userID, err := requireUserID(p.Context)
					if err != nil {
						return nil, err
					}
					collection, err := s.store.GetCollectionByName(p.Context, userID, p.Args["collectionName"].(string))
					if err != nil {
						return nil, gqlError(err)
					}
					edge, err := s.store.GetCollectionEntity(p.Context, collection.ID, p.Args["entityId"].(string))
					if err != nil {
						return nil, gqlError(err)
					}
					rank := decimal.NewFromFloat(p.Args["rank"].(float64))
					if err := s.store.UpdateCollectionEntityRank(p.Context, edge.ID, rank); err != nil {
						return nil, gqlError(err)
					}
					return true, nil
				},
			},
			"deployBackgroundJob": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"jobName": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: s.resolveDeployBackgroundJob,
			},
			"deployImportJob": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"source": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					// Object-storage keys of uploaded export files, in the
					// order the source documents.
					"files":      &graphql.ArgumentConfig{Type: graphql.NewList(graphql.NewNonNull(graphql.String))},
					"baseUrl":    &graphql.ArgumentConfig{Type: graphql.String},
					"username":   &graphql.ArgumentConfig{Type: graphql.String},
					"password":   &graphql.ArgumentConfig{Type: graphql.String},
					"token":      &graphql.ArgumentConfig{Type: graphql.String},
					"clientId":   &graphql.ArgumentConfig{Type: graphql.String},
					"collection": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: s.resolveDeployImportJob,
			},
			"generateLogDownloadToken": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					if !isAdmin(p.Context) {
						return nil, errAdminOnly
					}
					return s.auth.IssueLogDownloadToken(currentUserID(p.Context))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: query, Mutation: mutation})
}

// fieldOf adapts a typed accessor to a graphql resolver.
func fieldOf[T any](get func(T) any) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		v, ok := p.Source.(T)
		if !ok {
			return nil, nil
		}
		return get(v), nil
	}
}

func (s *Server) resolveProgressUpdate(p graphql.ResolveParams) (any, error) {
	userID, err := requireUserID(p.Context)
	if err != nil {
		return nil, err
	}
	common := models.MetadataProgressUpdateCommon{
		ShowSeasonNumber:     optInt(p.Args, "showSeasonNumber"),
		ShowEpisodeNumber:    optInt(p.Args, "showEpisodeNumber"),
		PodcastEpisodeNumber: optInt(p.Args, "podcastEpisodeNumber"),
		ProviderWatchedOn:    optString(p.Args, "providerWatchedOn"),
	}
	metadataID := p.Args["metadataId"].(string)
	completed, _ := p.Args["completed"].(bool)
	progressValue := optDecimal(p.Args, "progress")

	if completed {
		now := time.Now().UTC()
		seen, err := s.progress.Update(p.Context, userID, progress.UpdateInput{
			MetadataID:         metadataID,
			CreateNewCompleted: &progress.NewCompletedChange{FinishedOn: &now, Common: common},
		})
		if err != nil {
			return nil, gqlError(err)
		}
		return seen, nil
	}

	seen, err := s.progress.Update(p.Context, userID, progress.UpdateInput{
		MetadataID:          metadataID,
		CreateNewInProgress: &progress.NewInProgressChange{Common: common},
	})
	if err != nil && !errors.Is(err, progress.ErrAlreadyInProgress) {
		return nil, gqlError(err)
	}
	if progressValue != nil {
		seen, err = s.progress.Update(p.Context, userID, progress.UpdateInput{
			MetadataID:             metadataID,
			ChangeLatestInProgress: &progress.LatestInProgressChange{Progress: progressValue},
		})
		if err != nil {
			return nil, gqlError(err)
		}
	}
	return seen, nil
}

func (s *Server) resolveCreateWorkout(p graphql.ResolveParams) (any, error) {
	userID, err := requireUserID(p.Context)
	if err != nil {
		return nil, err
	}
	startTime, err := optTime(p.Args, "startTime")
	if err != nil {
		return nil, err
	}
	endTime, err := optTime(p.Args, "endTime")
	if err != nil {
		return nil, err
	}
	if startTime == nil || endTime == nil {
		return nil, errors.New("InvalidInput: startTime and endTime are required")
	}
	if err := validateInput(workoutRequest{Name: p.Args["name"].(string)}); err != nil {
		return nil, err
	}

	input := fitness.WorkoutInput{
		ID:        optString(p.Args, "id"),
		Name:      p.Args["name"].(string),
		StartTime: *startTime,
		EndTime:   *endTime,
		Comment:   optString(p.Args, "comment"),
	}
	rawExercises, _ := p.Args["exercises"].([]any)
	for _, rawExercise := range rawExercises {
		exerciseArgs, ok := rawExercise.(map[string]any)
		if !ok {
			continue
		}
		exercise := fitness.ExerciseInput{
			ExerciseID: optString(exerciseArgs, "exerciseId"),
		}
		if name, ok := exerciseArgs["name"].(string); ok {
			exercise.Name = name
		}
		if lot, ok := exerciseArgs["lot"].(string); ok {
			exercise.Lot = models.ExerciseLot(lot)
		}
		rawSets, _ := exerciseArgs["sets"].([]any)
		for _, rawSet := range rawSets {
			setArgs, ok := rawSet.(map[string]any)
			if !ok {
				continue
			}
			lot, _ := setArgs["lot"].(string)
			exercise.Sets = append(exercise.Sets, fitness.SetInput{
				Lot: models.SetLot(lot),
				Statistic: models.SetStatistic{
					Reps:     optDecimal(setArgs, "reps"),
					Weight:   optDecimal(setArgs, "weight"),
					Duration: optDecimal(setArgs, "duration"),
					Distance: optDecimal(setArgs, "distance"),
				},
				RestTime: optInt(setArgs, "restTime"),
			})
		}
		input.Exercises = append(input.Exercises, exercise)
	}

	workout, err := s.fitness.CreateOrUpdateUserWorkout(p.Context, userID, input)
	if err != nil {
		return nil, gqlError(err)
	}
	return workout, nil
}

func (s *Server) resolvePostReview(p graphql.ResolveParams) (any, error) {
	userID, err := requireUserID(p.Context)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(p.Context, userID)
	if err != nil {
		return nil, gqlError(err)
	}
	if user.Preferences.General.DisableReviews {
		return nil, errors.New("MutationNotAllowed: reviews are disabled for this account")
	}

	entityID := p.Args["entityId"].(string)
	req := reviewRequest{
		EntityID:   entityID,
		Visibility: p.Args["visibility"].(string),
	}
	if v, ok := p.Args["rating"].(float64); ok {
		req.Rating = &v
	}
	if text := optString(p.Args, "text"); text != nil {
		req.Text = *text
	}
	if err := validateInput(req); err != nil {
		return nil, err
	}
	entityLot, ok := models.EntityLotForID(entityID)
	if !ok {
		return nil, fmt.Errorf("InvalidInput: unknown entity id %q", entityID)
	}

	review := &models.Review{
		ID:         models.NewID(models.PrefixReview),
		UserID:     userID,
		EntityID:   entityID,
		EntityLot:  entityLot,
		Text:       optString(p.Args, "text"),
		Visibility: models.Visibility(p.Args["visibility"].(string)),
		IsSpoiler:  p.Args["isSpoiler"].(bool),
		PostedOn:   time.Now().UTC(),
	}
	if rating := optDecimal(p.Args, "rating"); rating != nil {
		normalized, err := models.NormalizeRating(*rating, user.Preferences.General.ReviewScale)
		if err != nil {
			return nil, fmt.Errorf("InvalidInput: %s", err)
		}
		review.Rating = &normalized
	}
	if season := optInt(p.Args, "showSeasonNumber"); season != nil {
		review.ShowExtraInformation = &models.ReviewShowExtraInformation{
			Season:  season,
			Episode: optInt(p.Args, "showEpisodeNumber"),
		}
	}

	if err := s.store.InsertReview(p.Context, review); err != nil {
		return nil, gqlError(err)
	}
	if err := s.queue.Enqueue(p.Context, jobs.KindReviewPosted, userID, jobs.ReviewPayload{ReviewID: review.ID}); err != nil {
		return nil, gqlError(err)
	}
	return review.ID, nil
}

func (s *Server) resolveAddToCollection(p graphql.ResolveParams) (any, error) {
	userID, err := requireUserID(p.Context)
	if err != nil {
		return nil, err
	}
	collection, err := s.store.GetCollectionByName(p.Context, userID, p.Args["collectionName"].(string))
	if err != nil {
		return nil, gqlError(err)
	}
	entityID := p.Args["entityId"].(string)
	rank, err := s.store.NextCollectionRank(p.Context, collection.ID)
	if err != nil {
		return nil, gqlError(err)
	}
	edge, err := models.NewCollectionToEntity(collection.ID, entityID, rank)
	if err != nil {
		return nil, fmt.Errorf("InvalidInput: %s", err)
	}
	if _, err := s.store.AddEntityToCollection(p.Context, edge); err != nil {
		return nil, gqlError(err)
	}
	err = s.queue.Enqueue(p.Context, jobs.KindHandleEntityAddedToCollection, userID,
		jobs.CollectionEntityPayload{CollectionID: collection.ID, EntityID: entityID})
	if err != nil {
		return nil, gqlError(err)
	}
	return true, nil
}

func (s *Server) resolveDeployBackgroundJob(p graphql.ResolveParams) (any, error) {
	userID, err := requireUserID(p.Context)
	if err != nil {
		return nil, err
	}
	jobName := p.Args["jobName"].(string)

	adminOnly := map[jobs.Kind]bool{
		jobs.KindUpdateExerciseLibrary:     true,
		jobs.KindSyncIntegrationsData:      true,
		jobs.KindRecalculateCalendarEvents: true,
	}
	userScoped := map[jobs.Kind]bool{
		jobs.KindPerformExport:                     true,
		jobs.KindCalculateUserActivitiesAndSummary: true,
		jobs.KindReEvaluateUserWorkouts:            true,
	}
	kind := jobs.Kind(jobName)
	switch {
	case adminOnly[kind]:
		if !isAdmin(p.Context) {
			return nil, errAdminOnly
		}
		userID = ""
	case userScoped[kind]:
	default:
		return nil, fmt.Errorf("InvalidInput: unknown job %q", jobName)
	}

	var payload any
	if kind == jobs.KindCalculateUserActivitiesAndSummary {
		payload = jobs.ActivitiesPayload{FromScratch: true}
	}
	if err := s.queue.Enqueue(p.Context, kind, userID, payload); err != nil {
		return nil, gqlError(err)
	}
	return true, nil
}

func (s *Server) resolveDeployImportJob(p graphql.ResolveParams) (any, error) {
	userID, err := requireUserID(p.Context)
	if err != nil {
		return nil, err
	}
	source := p.Args["source"].(string)
	if !validImportSources[models.ImportSource(source)] {
		return nil, fmt.Errorf("InvalidInput: unknown import source %q", source)
	}

	payload := jobs.ImportRequestPayload{
		Source:     source,
		BaseURL:    stringArg(p.Args, "baseUrl"),
		Username:   stringArg(p.Args, "username"),
		Password:   stringArg(p.Args, "password"),
		Token:      stringArg(p.Args, "token"),
		ClientID:   stringArg(p.Args, "clientId"),
		Collection: stringArg(p.Args, "collection"),
	}
	if raw, ok := p.Args["files"].([]any); ok {
		for _, f := range raw {
			if key, ok := f.(string); ok {
				payload.Files = append(payload.Files, key)
			}
		}
	}
	if err := s.queue.Enqueue(p.Context, jobs.KindImportFromExternalSource, userID, payload); err != nil {
		return nil, gqlError(err)
	}
	return true, nil
}

var validImportSources = map[models.ImportSource]bool{
	models.ImportSourceAnilist:        true,
	models.ImportSourceAudiobookshelf: true,
	models.ImportSourceGenericJson:    true,
	models.ImportSourceGoodreads:      true,
	models.ImportSourceGrouvee:        true,
	models.ImportSourceHevy:           true,
	models.ImportSourceIgdb:           true,
	models.ImportSourceImdb:           true,
	models.ImportSourceJellyfin:       true,
	models.ImportSourceMediaTracker:   true,
	models.ImportSourceMovary:         true,
	models.ImportSourceMyAnimeList:    true,
	models.ImportSourceOpenScale:      true,
	models.ImportSourcePlex:           true,
	models.ImportSourceStoryGraph:     true,
	models.ImportSourceStrongApp:      true,
	models.ImportSourceTrakt:          true,
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
