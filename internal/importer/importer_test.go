// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/progress"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

type fakeStore struct {
	commitErr error

	metadata     map[string]string
	reviews      []*models.Review
	collections  map[string]*models.Collection
	members      map[string][]string
	exercises    []*models.Exercise
	workouts     []*models.Workout
	measurements []*models.UserMeasurement

	reports    map[string]*models.ImportReport
	finished   map[string]*models.ImportResultDetails
	finishedOK map[string]bool
	ticks      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		metadata:    map[string]string{},
		collections: map[string]*models.Collection{},
		members:     map[string][]string{},
		reports:     map[string]*models.ImportReport{},
		finished:    map[string]*models.ImportResultDetails{},
		finishedOK:  map[string]bool{},
	}
}

func (s *fakeStore) CommitMetadata(_ context.Context, p models.PartialMetadata) (string, error) {
	if s.commitErr != nil {
		return "", s.commitErr
	}
	key := string(p.Lot) + "/" + string(p.Source) + "/" + p.Identifier
	if id, ok := s.metadata[key]; ok {
		return id, nil
	}
	id := models.PrefixMetadata + "_" + p.Identifier
	s.metadata[key] = id
	return id, nil
}

func (s *fakeStore) CommitMetadataGroup(_ context.Context, _ models.MediaLot, _ models.MediaSource, identifier, _ string) (string, error) {
	return models.PrefixMetadataGroup + "_" + identifier, nil
}

func (s *fakeStore) CommitPerson(_ context.Context, identifier string, _ models.MediaSource, _ string, _ *models.PersonSourceSpecifics) (string, error) {
	return models.PrefixPerson + "_" + identifier, nil
}

func (s *fakeStore) GetCollectionByName(_ context.Context, userID, name string) (*models.Collection, error) {
	if c, ok := s.collections[userID+"/"+name]; ok {
		return c, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) CreateCollection(_ context.Context, c *models.Collection) error {
	s.collections[c.UserID+"/"+c.Name] = c
	return nil
}

func (s *fakeStore) NextCollectionRank(_ context.Context, collectionID string) (decimal.Decimal, error) {
	return decimal.NewFromInt(int64(len(s.members[collectionID]) + 1)), nil
}

func (s *fakeStore) AddEntityToCollection(_ context.Context, e *models.CollectionToEntity) (*models.CollectionToEntity, error) {
	s.members[e.CollectionID] = append(s.members[e.CollectionID], e.ID)
	return e, nil
}

func (s *fakeStore) InsertReview(_ context.Context, r *models.Review) error {
	s.reviews = append(s.reviews, r)
	return nil
}

func (s *fakeStore) UpsertExercise(_ context.Context, e *models.Exercise) error {
	s.exercises = append(s.exercises, e)
	return nil
}

func (s *fakeStore) UpsertWorkout(_ context.Context, w *models.Workout) error {
	s.workouts = append(s.workouts, w)
	return nil
}

func (s *fakeStore) InsertUserMeasurement(_ context.Context, m *models.UserMeasurement) error {
	s.measurements = append(s.measurements, m)
	return nil
}

func (s *fakeStore) CreateImportReport(_ context.Context, userID string, source models.ImportSource) (*models.ImportReport, error) {
	report := &models.ImportReport{
		ID:        models.PrefixImportReport + "_1",
		UserID:    userID,
		Source:    source,
		StartedOn: time.Now().UTC(),
	}
	s.reports[report.ID] = report
	return report, nil
}

func (s *fakeStore) UpdateImportReportProgress(_ context.Context, _ string, _ decimal.Decimal, _ time.Time) error {
	s.ticks++
	return nil
}

func (s *fakeStore) FinishImportReport(_ context.Context, id string, success bool, details *models.ImportResultDetails) error {
	s.finished[id] = details
	s.finishedOK[id] = success
	return nil
}

type fakeEngine struct {
	updates []progress.UpdateInput
	errs    []error
}

func (e *fakeEngine) Update(_ context.Context, _ string, in progress.UpdateInput) (*models.Seen, error) {
	e.updates = append(e.updates, in)
	if len(e.errs) > 0 {
		err := e.errs[0]
		e.errs = e.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.Seen{}, nil
}

type fakeSource struct {
	source models.ImportSource
	result *models.ImportResult
	err    error
}

func (f *fakeSource) Source() models.ImportSource { return f.source }

func (f *fakeSource) Import(context.Context, string) (*models.ImportResult, error) {
	return f.result, f.err
}

func testImporter() (*Importer, *fakeStore, *fakeEngine) {
	store := newFakeStore()
	engine := &fakeEngine{}
	return NewImporter(config.ImporterConfig{}, store, engine, nil), store, engine
}

type fakeCache struct {
	expired []string
}

func (c *fakeCache) ExpireByDiscriminant(d cache.KeyDiscriminant, userID string) int {
	c.expired = append(c.expired, string(d)+"/"+userID)
	return 1
}

func TestEnsureCollectionExpiresCollectionsList(t *testing.T) {
	store := newFakeStore()
	c := &fakeCache{}
	imp := NewImporter(config.ImporterConfig{}, store, &fakeEngine{}, c)

	coll, err := imp.ensureCollection(context.Background(), "usr_1", "Classics")
	if err != nil {
		t.Fatal(err)
	}
	if coll.Name != "Classics" {
		t.Fatalf("collection: %+v", coll)
	}
	if len(c.expired) != 1 || c.expired[0] != string(cache.DiscUserCollectionsList)+"/usr_1" {
		t.Fatalf("expired: %v", c.expired)
	}

	// The second lookup hits the existing row; no further invalidation.
	if _, err := imp.ensureCollection(context.Background(), "usr_1", "Classics"); err != nil {
		t.Fatal(err)
	}
	if len(c.expired) != 1 {
		t.Fatalf("expired twice: %v", c.expired)
	}
}

func hasCollection(item *models.ImportOrExportMetadataItem, name string) bool {
	for _, c := range item.Collections {
		if c == name {
			return true
		}
	}
	return false
}

func TestCleanIsbn(t *testing.T) {
	for raw, want := range map[string]string{
		`="0141439513"`:      "0141439513",
		"978-0-14-143951-8":  "9780141439518",
		` ="9780316066525" `: "9780316066525",
		`=""`:                "",
	} {
		if got := cleanIsbn(raw); got != want {
			t.Errorf("cleanIsbn(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestTitleCase(t *testing.T) {
	if got := titleCase("all-time favorites"); got != "All Time Favorites" {
		t.Fatalf("titleCase = %q", got)
	}
}

func TestBookResolverChain(t *testing.T) {
	notFound := func(context.Context, string) (string, error) {
		return "", providers.ErrNotFoundByProvider
	}
	resolver := &BookResolver{
		hardcover: notFound,
		googleBooks: func(_ context.Context, isbn string) (string, error) {
			if isbn != "9780141439518" {
				t.Fatalf("isbn not cleaned: %q", isbn)
			}
			return "vol42", nil
		},
	}
	id, source, err := resolver.Resolve(context.Background(), "978-0-14-143951-8")
	if err != nil {
		t.Fatal(err)
	}
	if id != "vol42" || source != models.MediaSourceGoogleBooks {
		t.Fatalf("got %q from %q", id, source)
	}

	exhausted := &BookResolver{hardcover: notFound, openlibrary: notFound}
	if _, _, err := exhausted.Resolve(context.Background(), "123"); !errors.Is(err, providers.ErrNotFoundByProvider) {
		t.Fatalf("want ErrNotFoundByProvider, got %v", err)
	}

	boom := errors.New("boom")
	failing := &BookResolver{
		hardcover:   func(context.Context, string) (string, error) { return "", boom },
		googleBooks: func(context.Context, string) (string, error) { t.Fatal("chain not aborted"); return "", nil },
	}
	if _, _, err := failing.Resolve(context.Background(), "123"); !errors.Is(err, boom) {
		t.Fatalf("want hard error, got %v", err)
	}
}

const goodreadsCsv = `Title,ISBN,ISBN13,My Rating,My Review,Exclusive Shelf,Bookshelves,Date Read,Date Added
Dune,"=""0441172717""","=""9780441172719""",4,Spice must flow,read,"sci-fi, read",2019/07/01,2019/06/01
Piranesi,"=""1635575634""","=""""",0,,currently-reading,,,2023/01/15
Blindsight,"=""0765319640""","=""""",0,,to-read,,,
`

func goodreadsResolver() *BookResolver {
	return &BookResolver{
		openlibrary: func(_ context.Context, isbn string) (string, error) {
			return "OL" + isbn, nil
		},
	}
}

func TestGoodreadsShelfMapping(t *testing.T) {
	source := NewGoodreads(config.ImporterConfig{}, strings.NewReader(goodreadsCsv), goodreadsResolver())
	result, err := source.Import(context.Background(), "usr_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Failed) != 0 {
		t.Fatalf("failed items: %+v", result.Failed)
	}
	if len(result.Completed) != 3 {
		t.Fatalf("completed = %d", len(result.Completed))
	}

	dune := result.Completed[0].Metadata
	if dune.Identifier != "OL9780441172719" || dune.Source != models.MediaSourceOpenlibrary {
		t.Fatalf("dune resolved to %q from %q", dune.Identifier, dune.Source)
	}
	if len(dune.SeenHistory) != 1 || dune.SeenHistory[0].EndedOn == nil {
		t.Fatalf("dune seen history: %+v", dune.SeenHistory)
	}
	if got := dune.SeenHistory[0].EndedOn.Format("2006-01-02"); got != "2019-07-01" {
		t.Fatalf("dune read date = %s", got)
	}
	if !hasCollection(dune, "Sci Fi") || hasCollection(dune, "Read") {
		t.Fatalf("dune collections: %v", dune.Collections)
	}
	if len(dune.Reviews) != 1 || !dune.Reviews[0].Rating.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("dune reviews: %+v", dune.Reviews)
	}

	piranesi := result.Completed[1].Metadata
	if len(piranesi.SeenHistory) != 1 || piranesi.SeenHistory[0].StartedOn == nil || piranesi.SeenHistory[0].EndedOn != nil {
		t.Fatalf("piranesi seen history: %+v", piranesi.SeenHistory)
	}

	blindsight := result.Completed[2].Metadata
	if !hasCollection(blindsight, string(models.CollectionWatchlist)) {
		t.Fatalf("blindsight collections: %v", blindsight.Collections)
	}
}

func TestGoodreadsStrictShelves(t *testing.T) {
	const csv = `Title,ISBN,Exclusive Shelf
Anathem,"=""0061474096""",abandoned
`
	strict := NewGoodreads(config.ImporterConfig{StrictShelves: true}, strings.NewReader(csv), goodreadsResolver())
	result, err := strict.Import(context.Background(), "usr_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Completed) != 0 || len(result.Failed) != 1 {
		t.Fatalf("strict: completed=%d failed=%d", len(result.Completed), len(result.Failed))
	}
	if result.Failed[0].Step != models.ImportFailInputTransformation {
		t.Fatalf("failed step = %s", result.Failed[0].Step)
	}

	lax := NewGoodreads(config.ImporterConfig{}, strings.NewReader(csv), goodreadsResolver())
	result, err = lax.Import(context.Background(), "usr_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Completed) != 1 || len(result.Failed) != 0 {
		t.Fatalf("lax: completed=%d failed=%d", len(result.Completed), len(result.Failed))
	}
}

func TestGoodreadsUnresolvedIsbn(t *testing.T) {
	const csv = `Title,ISBN,Exclusive Shelf
Mystery Book,"=""0000000000000""",read
`
	resolver := &BookResolver{
		openlibrary: func(context.Context, string) (string, error) {
			return "", providers.ErrNotFoundByProvider
		},
	}
	source := NewGoodreads(config.ImporterConfig{}, strings.NewReader(csv), resolver)
	result, err := source.Import(context.Background(), "usr_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Failed) != 1 || result.Failed[0].Step != models.ImportFailMediaDetailsFromProvider {
		t.Fatalf("failed: %+v", result.Failed)
	}
}

func TestGrouveeImport(t *testing.T) {
	const csv = `name,shelves,rating,review,giantbomb_id
Celeste,"{""Played"": {}, ""backlog"": {}}",5,,12345
Lost Game,"{""Played"": {}}",,,
`
	source := NewGrouvee(config.ImporterConfig{}, strings.NewReader(csv))
	result, err := source.Import(context.Background(), "usr_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Completed) != 1 || len(result.Failed) != 1 {
		t.Fatalf("completed=%d failed=%d", len(result.Completed), len(result.Failed))
	}

	celeste := result.Completed[0].Metadata
	if celeste.Identifier != "3030-12345" || celeste.Source != models.MediaSourceGiantBomb {
		t.Fatalf("celeste identified as %q from %q", celeste.Identifier, celeste.Source)
	}
	if len(celeste.SeenHistory) != 1 {
		t.Fatalf("celeste seen history: %+v", celeste.SeenHistory)
	}
	if !hasCollection(celeste, string(models.CollectionCompleted)) || !hasCollection(celeste, "Backlog") {
		t.Fatalf("celeste collections: %v", celeste.Collections)
	}
	if len(celeste.Reviews) != 1 || !celeste.Reviews[0].Rating.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("celeste reviews: %+v", celeste.Reviews)
	}

	if result.Failed[0].Identifier != "Lost Game" {
		t.Fatalf("failed: %+v", result.Failed)
	}
}

func TestMovaryDedupesAcrossFiles(t *testing.T) {
	history := "title,tmdbId,watchedAt\nThe Matrix,603,2021-05-01\n"
	ratings := "title,tmdbId,userRating\nThe Matrix,603,8\n"
	watchlist := "title,tmdbId\nThe Matrix,603\n"
	source := NewMovary(strings.NewReader(history), strings.NewReader(ratings), strings.NewReader(watchlist))
	result, err := source.Import(context.Background(), "usr_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Completed) != 1 {
		t.Fatalf("completed = %d", len(result.Completed))
	}
	matrix := result.Completed[0].Metadata
	if len(matrix.SeenHistory) != 1 || matrix.SeenHistory[0].EndedOn == nil {
		t.Fatalf("seen history: %+v", matrix.SeenHistory)
	}
	if len(matrix.Reviews) != 1 || !matrix.Reviews[0].Rating.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("reviews: %+v", matrix.Reviews)
	}
	if !hasCollection(matrix, string(models.CollectionWatchlist)) {
		t.Fatalf("collections: %v", matrix.Collections)
	}
}

const malXML = `<?xml version="1.0" encoding="UTF-8"?>
<myanimelist>
  <anime>
    <series_animedb_id>1</series_animedb_id>
    <series_title>Cowboy Bebop</series_title>
    <my_watched_episodes>26</my_watched_episodes>
    <my_score>9</my_score>
    <my_status>Completed</my_status>
    <my_start_date>2020-01-01</my_start_date>
    <my_finish_date>2020-02-01</my_finish_date>
  </anime>
  <anime>
    <series_animedb_id>30</series_animedb_id>
    <series_title>Neon Genesis Evangelion</series_title>
    <my_watched_episodes>5</my_watched_episodes>
    <my_score>0</my_score>
    <my_status>Watching</my_status>
    <my_start_date>0000-00-00</my_start_date>
  </anime>
  <anime>
    <series_animedb_id>44</series_animedb_id>
    <series_title>Rurouni Kenshin</series_title>
    <my_status>Plan to Watch</my_status>
  </anime>
  <manga>
    <series_mangadb_id>2</series_mangadb_id>
    <series_title>Berserk</series_title>
    <my_read_chapters>12.5</my_read_chapters>
    <my_read_volumes>2</my_read_volumes>
    <my_score>7</my_score>
    <my_status>Reading</my_status>
  </manga>
</myanimelist>`

func TestMyAnimeListStatuses(t *testing.T) {
	source := NewMyAnimeList(strings.NewReader(malXML))
	result, err := source.Import(context.Background(), "usr_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Completed) != 4 {
		t.Fatalf("completed = %d", len(result.Completed))
	}

	bebop := result.Completed[0].Metadata
	if bebop.Identifier != "1" || bebop.Lot != models.MediaLotAnime {
		t.Fatalf("bebop: %+v", bebop)
	}
	if len(bebop.SeenHistory) != 1 || bebop.SeenHistory[0].EndedOn == nil {
		t.Fatalf("bebop seen: %+v", bebop.SeenHistory)
	}
	if !bebop.Reviews[0].Rating.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("bebop rating: %v", bebop.Reviews[0].Rating)
	}

	eva := result.Completed[1].Metadata
	if len(eva.SeenHistory) != 1 || eva.SeenHistory[0].AnimeEpisodeNumber == nil || *eva.SeenHistory[0].AnimeEpisodeNumber != 5 {
		t.Fatalf("eva seen: %+v", eva.SeenHistory)
	}
	if eva.SeenHistory[0].StartedOn != nil {
		t.Fatal("zero date parsed as started_on")
	}
	if len(eva.Reviews) != 0 {
		t.Fatalf("score 0 produced a rating: %+v", eva.Reviews)
	}

	kenshin := result.Completed[2].Metadata
	if !hasCollection(kenshin, string(models.CollectionWatchlist)) {
		t.Fatalf("kenshin collections: %v", kenshin.Collections)
	}

	berserk := result.Completed[3].Metadata
	if berserk.Lot != models.MediaLotManga || berserk.Identifier != "2" {
		t.Fatalf("berserk: %+v", berserk)
	}
	seen := berserk.SeenHistory[0]
	if seen.MangaChapterNumber == nil || !seen.MangaChapterNumber.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("berserk chapters: %+v", seen)
	}
	if seen.MangaVolumeNumber == nil || *seen.MangaVolumeNumber != 2 {
		t.Fatalf("berserk volumes: %+v", seen)
	}
}

const strongCsv = `Date,Workout Name,Duration,Exercise Name,Set Order,Weight,Reps,Distance,Seconds,Notes,Workout Notes,RPE
2023-01-12 07:30:00,Push Day,1h 5m,Bench Press,1,80,5,,,,Felt strong,
2023-01-12 07:30:00,Push Day,1h 5m,Bench Press,2,85,3,,,grinder,Felt strong,8
2023-01-12 07:30:00,Push Day,1h 5m,Plank,1,,,,60,,Felt strong,
`

func TestStrongWorkoutGrouping(t *testing.T) {
	source := NewStrongApp(strings.NewReader(strongCsv), nil, nil)
	result, err := source.Import(context.Background(), "usr_1")
	if err != nil {
		t.Fatal(err)
	}

	var workout *models.Workout
	var exercises []*models.ImportOrExportExerciseItem
	for _, item := range result.Completed {
		if item.Workout != nil {
			workout = item.Workout
		}
		if item.Exercise != nil {
			exercises = append(exercises, item.Exercise)
		}
	}
	if workout == nil || len(exercises) != 2 {
		t.Fatalf("workout=%v exercises=%d", workout, len(exercises))
	}
	if workout.Duration != 3900 {
		t.Fatalf("duration = %d", workout.Duration)
	}
	if workout.Information.Comment == nil || *workout.Information.Comment != "Felt strong" {
		t.Fatalf("comment: %v", workout.Information.Comment)
	}
	if len(workout.Information.Exercises) != 2 {
		t.Fatalf("exercises in workout = %d", len(workout.Information.Exercises))
	}

	bench := workout.Information.Exercises[0]
	if bench.Lot != models.ExerciseLotRepsAndWeight {
		t.Fatalf("bench lot = %s", bench.Lot)
	}
	wantID := models.DeterministicID(models.PrefixExercise, "Bench Press", string(models.ExerciseLotRepsAndWeight), "usr_1")
	if bench.ID != wantID {
		t.Fatalf("bench id = %s, want %s", bench.ID, wantID)
	}
	if len(bench.Sets) != 2 {
		t.Fatalf("bench sets = %d", len(bench.Sets))
	}
	if bench.Sets[1].Rpe == nil || *bench.Sets[1].Rpe != 8 {
		t.Fatalf("bench rpe: %+v", bench.Sets[1])
	}

	plank := workout.Information.Exercises[1]
	if plank.Lot != models.ExerciseLotDuration {
		t.Fatalf("plank lot = %s", plank.Lot)
	}
	if plank.Sets[0].Statistic.Duration == nil || !plank.Sets[0].Statistic.Duration.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("plank duration: %+v", plank.Sets[0].Statistic)
	}
}

func TestInferExerciseLot(t *testing.T) {
	d := func(v int64) *decimal.Decimal { return ptr(decimal.NewFromInt(v)) }
	cases := []struct {
		stat models.SetStatistic
		want models.ExerciseLot
	}{
		{models.SetStatistic{Reps: d(5), Weight: d(80)}, models.ExerciseLotRepsAndWeight},
		{models.SetStatistic{Reps: d(20), Duration: d(2)}, models.ExerciseLotRepsAndDuration},
		{models.SetStatistic{Distance: d(5), Duration: d(30)}, models.ExerciseLotDistanceAndDuration},
		{models.SetStatistic{Duration: d(1)}, models.ExerciseLotDuration},
		{models.SetStatistic{Reps: d(10)}, models.ExerciseLotReps},
		{models.SetStatistic{}, models.ExerciseLotReps},
	}
	for _, tc := range cases {
		if got := inferExerciseLot(tc.stat); got != tc.want {
			t.Errorf("inferExerciseLot(%+v) = %s, want %s", tc.stat, got, tc.want)
		}
	}
}

func TestParseStrongDuration(t *testing.T) {
	for raw, want := range map[string]time.Duration{
		"1h 5m": 65 * time.Minute,
		"35m":   35 * time.Minute,
		"45s":   45 * time.Second,
		"junk":  0,
		"":      0,
	} {
		if got := parseStrongDuration(raw); got != want {
			t.Errorf("parseStrongDuration(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestGenericJsonRoundTrip(t *testing.T) {
	export := models.CompleteExport{
		Media: []models.ImportOrExportMetadataItem{{
			Lot:        models.MediaLotMovie,
			Source:     models.MediaSourceTmdb,
			Identifier: "603",
			SourceID:   "The Matrix",
		}},
		Workouts: []models.Workout{{ID: "wor_1", Name: "Push Day"}},
	}
	raw, err := json.Marshal(export)
	if err != nil {
		t.Fatal(err)
	}

	source := NewGenericJson(bytes.NewReader(raw))
	result, err := source.Import(context.Background(), "usr_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Completed) != 2 {
		t.Fatalf("completed = %d", len(result.Completed))
	}
	if result.Completed[0].Metadata.Identifier != "603" {
		t.Fatalf("metadata: %+v", result.Completed[0].Metadata)
	}
	if result.Completed[1].Workout.Name != "Push Day" {
		t.Fatalf("workout: %+v", result.Completed[1].Workout)
	}
}

func TestApplyReplaysSeenHistory(t *testing.T) {
	imp, store, engine := testImporter()
	finished := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)
	result := &models.ImportResult{
		Completed: []models.ImportCompletedItem{{
			Metadata: &models.ImportOrExportMetadataItem{
				Lot:        models.MediaLotMovie,
				Source:     models.MediaSourceTmdb,
				Identifier: "603",
				SourceID:   "The Matrix",
				SeenHistory: []models.ImportOrExportMetadataItemSeen{
					{EndedOn: &finished},
					{Progress: ptr(decimal.NewFromInt(45))},
				},
				Reviews:     []models.ImportOrExportItemRating{{Rating: ptr(decimal.NewFromInt(80))}},
				Collections: []string{"Favorites"},
			},
		}},
	}

	failed := imp.Apply(context.Background(), "usr_1", "", result)
	if len(failed) != 0 {
		t.Fatalf("failed: %+v", failed)
	}
	if len(engine.updates) != 3 {
		t.Fatalf("engine updates = %d", len(engine.updates))
	}
	if engine.updates[0].CreateNewCompleted == nil {
		t.Fatalf("first update: %+v", engine.updates[0])
	}
	if engine.updates[1].CreateNewInProgress == nil {
		t.Fatalf("second update: %+v", engine.updates[1])
	}
	change := engine.updates[2].ChangeLatestInProgress
	if change == nil || !change.Progress.Equal(decimal.NewFromInt(45)) {
		t.Fatalf("third update: %+v", engine.updates[2])
	}

	if len(store.reviews) != 1 || !store.reviews[0].Rating.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("reviews: %+v", store.reviews)
	}
	coll, ok := store.collections["usr_1/Favorites"]
	if !ok {
		t.Fatal("collection not created")
	}
	if len(store.members[coll.ID]) != 1 {
		t.Fatalf("collection members: %v", store.members[coll.ID])
	}
}

func TestApplyToleratesOpenRowOnReplay(t *testing.T) {
	imp, _, engine := testImporter()
	engine.errs = []error{progress.ErrAlreadyInProgress, nil}
	result := &models.ImportResult{
		Completed: []models.ImportCompletedItem{{
			Metadata: &models.ImportOrExportMetadataItem{
				Lot:        models.MediaLotMovie,
				Source:     models.MediaSourceTmdb,
				Identifier: "603",
				SeenHistory: []models.ImportOrExportMetadataItemSeen{
					{Progress: ptr(decimal.NewFromInt(60))},
				},
			},
		}},
	}
	if failed := imp.Apply(context.Background(), "usr_1", "", result); len(failed) != 0 {
		t.Fatalf("failed: %+v", failed)
	}
	if len(engine.updates) != 2 || engine.updates[1].ChangeLatestInProgress == nil {
		t.Fatalf("updates: %+v", engine.updates)
	}
}

func TestApplyReportsCommitFailure(t *testing.T) {
	imp, store, _ := testImporter()
	store.commitErr = errors.New("unique violation")
	result := &models.ImportResult{
		Completed: []models.ImportCompletedItem{{
			Metadata: &models.ImportOrExportMetadataItem{
				Lot:        models.MediaLotMovie,
				Source:     models.MediaSourceTmdb,
				Identifier: "603",
			},
		}},
	}
	failed := imp.Apply(context.Background(), "usr_1", "imr_1", result)
	if len(failed) != 1 {
		t.Fatalf("failed = %d", len(failed))
	}
	if failed[0].Step != models.ImportFailDatabaseCommit || failed[0].Identifier != "603" {
		t.Fatalf("failed item: %+v", failed[0])
	}
	if store.ticks == 0 {
		t.Fatal("report progress never ticked")
	}
}

func TestRunRecordsSourceFailure(t *testing.T) {
	imp, store, _ := testImporter()
	source := &fakeSource{source: models.ImportSourceTrakt, err: errors.New("rate limited")}
	report, err := imp.Run(context.Background(), "usr_1", source)
	if err == nil {
		t.Fatal("expected error")
	}
	if store.finishedOK[report.ID] {
		t.Fatal("report finished as success")
	}
	details := store.finished[report.ID]
	if details == nil || len(details.FailedItems) != 1 || details.FailedItems[0].Step != models.ImportFailItemDetailsFromSource {
		t.Fatalf("details: %+v", details)
	}
}

func TestRunFinishesReport(t *testing.T) {
	imp, store, _ := testImporter()
	source := &fakeSource{
		source: models.ImportSourceOpenScale,
		result: &models.ImportResult{
			Completed: []models.ImportCompletedItem{{
				Measurement: &models.UserMeasurement{
					Timestamp: time.Now().UTC(),
					Stats:     models.UserMeasurementStats{Weight: ptr(decimal.NewFromInt(80))},
				},
			}},
		},
	}
	report, err := imp.Run(context.Background(), "usr_1", source)
	if err != nil {
		t.Fatal(err)
	}
	if !store.finishedOK[report.ID] {
		t.Fatal("report not finished as success")
	}
	details := store.finished[report.ID]
	if details.Import.Total != 1 || len(details.FailedItems) != 0 {
		t.Fatalf("details: %+v", details)
	}
	if len(store.measurements) != 1 || store.measurements[0].UserID != "usr_1" {
		t.Fatalf("measurements: %+v", store.measurements)
	}
}
