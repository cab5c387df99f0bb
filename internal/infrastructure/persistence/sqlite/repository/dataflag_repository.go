package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dataflag/internal/domain/dataflag"
	"dataflag/internal/errs"
	"dataflag/internal/infrastructure/persistence/sqlite/model"
	"dataflag/internal/ports"
)

type DataflagRepository struct {
	db *gorm.DB
}

func NewDataflagRepository(db *gorm.DB) *DataflagRepository {
	return &DataflagRepository{db: db}
}

func (r *DataflagRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

// Revisions

func (r *DataflagRepository) CreateRevision(ctx context.Context, name string, description *string) (ports.Revision, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Revision{}, err
	}

	row := model.Revision{Name: name, Description: description}
	if err := db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return ports.Revision{}, fmt.Errorf("revision %q: %w", name, ports.ErrAlreadyExists)
		}
		return ports.Revision{}, errs.Wrap(err, "insert revision")
	}
	return mapRevision(row), nil
}

func (r *DataflagRepository) ListRevisions(ctx context.Context) ([]ports.Revision, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.Revision
	if err := db.Order("revision_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query revisions")
	}

	items := make([]ports.Revision, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapRevision(row))
	}
	return items, nil
}

func (r *DataflagRepository) GetRevisionByName(ctx context.Context, name string) (ports.Revision, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Revision{}, err
	}

	var row model.Revision
	if err := db.Where("name = ?", name).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Revision{}, fmt.Errorf("revision %q: %w", name, ports.ErrRevisionNotFound)
		}
		return ports.Revision{}, errs.Wrap(err, "query revision")
	}
	return mapRevision(row), nil
}

// Users

func (r *DataflagRepository) CreateUser(ctx context.Context, name string) (ports.User, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.User{}, err
	}

	row := model.User{Name: name}
	if err := db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return ports.User{}, fmt.Errorf("user %q: %w", name, ports.ErrAlreadyExists)
		}
		return ports.User{}, errs.Wrap(err, "insert user")
	}
	return ports.User{ID: row.UserID, Name: row.Name}, nil
}

func (r *DataflagRepository) ListUsers(ctx context.Context) ([]ports.User, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.User
	if err := db.Order("user_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query users")
	}

	items := make([]ports.User, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.User{ID: row.UserID, Name: row.Name})
	}
	return items, nil
}

func (r *DataflagRepository) GetUserByName(ctx context.Context, name string) (ports.User, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.User{}, err
	}

	var row model.User
	if err := db.Where("name = ?", name).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.User{}, fmt.Errorf("user %q: %w", name, ports.ErrUserNotFound)
		}
		return ports.User{}, errs.Wrap(err, "query user")
	}
	return ports.User{ID: row.UserID, Name: row.Name}, nil
}

// Clients

func (r *DataflagRepository) GetOrCreateClient(ctx context.Context, name, version string) (ports.Client, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Client{}, err
	}

	var row model.Client
	err = db.Where("client_name = ? AND client_version = ?", name, version).Take(&row).Error
	if err == nil {
		return mapClient(row), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ports.Client{}, errs.Wrap(err, "query client")
	}

	row = model.Client{Name: name, Version: version}
	if err := db.Create(&row).Error; err != nil {
		return ports.Client{}, errs.Wrap(err, "insert client")
	}
	return mapClient(row), nil
}

// Type catalogs

func (r *DataflagRepository) CreateFlagType(ctx context.Context, name string, description *string, metadata dataflag.Metadata) (ports.CatalogType, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.CatalogType{}, err
	}

	row := model.FlagType{Name: name, Description: description, Metadata: datatypes.JSONMap(metadata)}
	if err := db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return ports.CatalogType{}, fmt.Errorf("flag type %q: %w", name, ports.ErrAlreadyExists)
		}
		return ports.CatalogType{}, errs.Wrap(err, "insert flag type")
	}
	return mapFlagType(row), nil
}

func (r *DataflagRepository) ListFlagTypes(ctx context.Context) ([]ports.CatalogType, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.FlagType
	if err := db.Order("flag_type_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query flag types")
	}

	items := make([]ports.CatalogType, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapFlagType(row))
	}
	return items, nil
}

func (r *DataflagRepository) GetFlagTypeByName(ctx context.Context, name string) (ports.CatalogType, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.CatalogType{}, err
	}

	var row model.FlagType
	if err := db.Where("name = ?", name).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.CatalogType{}, fmt.Errorf("flag type %q: %w", name, ports.ErrFlagTypeNotFound)
		}
		return ports.CatalogType{}, errs.Wrap(err, "query flag type")
	}
	return mapFlagType(row), nil
}

func (r *DataflagRepository) CreateOpinionType(ctx context.Context, name string, description *string, metadata dataflag.Metadata) (ports.CatalogType, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.CatalogType{}, err
	}

	row := model.OpinionType{Name: name, Description: description, Metadata: datatypes.JSONMap(metadata)}
	if err := db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return ports.CatalogType{}, fmt.Errorf("opinion type %q: %w", name, ports.ErrAlreadyExists)
		}
		return ports.CatalogType{}, errs.Wrap(err, "insert opinion type")
	}
	return mapOpinionType(row), nil
}

func (r *DataflagRepository) ListOpinionTypes(ctx context.Context) ([]ports.CatalogType, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.OpinionType
	if err := db.Order("opinion_type_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query opinion types")
	}

	items := make([]ports.CatalogType, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapOpinionType(row))
	}
	return items, nil
}

func (r *DataflagRepository) GetOpinionTypeByName(ctx context.Context, name string) (ports.CatalogType, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.CatalogType{}, err
	}

	var row model.OpinionType
	if err := db.Where("name = ?", name).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.CatalogType{}, fmt.Errorf("opinion type %q: %w", name, ports.ErrOpinionTypeNotFound)
		}
		return ports.CatalogType{}, errs.Wrap(err, "query opinion type")
	}
	return mapOpinionType(row), nil
}

// Flags

func (r *DataflagRepository) CreateFlag(ctx context.Context, input ports.FlagCreate) (ports.Flag, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Flag{}, err
	}

	row := model.Flag{
		FlagTypeID: input.TypeID,
		StartTime:  input.StartTime,
		FinishTime: input.FinishTime,
		Metadata:   datatypes.JSONMap(input.Metadata),
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.Flag{}, errs.Wrap(err, "insert flag")
	}
	return r.GetFlag(ctx, row.FlagID)
}

func (r *DataflagRepository) UpdateFlag(ctx context.Context, flag ports.Flag) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&model.Flag{}).
		Where("flag_id = ?", flag.ID).
		Updates(map[string]any{
			"flag_type_id": flag.TypeID,
			"start_time":   flag.StartTime,
			"finish_time":  flag.FinishTime,
			"metadata":     datatypes.JSONMap(flag.Metadata),
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "update flag")
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("flag %d: %w", flag.ID, ports.ErrFlagNotFound)
	}
	return nil
}

func (r *DataflagRepository) GetFlag(ctx context.Context, id uint64) (ports.Flag, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Flag{}, err
	}

	var row model.Flag
	if err := db.Preload("Type").Where("flag_id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Flag{}, fmt.Errorf("flag %d: %w", id, ports.ErrFlagNotFound)
		}
		return ports.Flag{}, errs.Wrap(err, "query flag")
	}
	return mapFlag(row), nil
}

func (r *DataflagRepository) ListFlags(ctx context.Context, filter ports.FlagFilter) ([]ports.Flag, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Flag{}).Preload("Type")
	if filter.TypeID != nil {
		query = query.Where("flag_type_id = ?", *filter.TypeID)
	}
	// Overlap filter: a flag with no finish time is open-ended and stays
	// active forever.
	if filter.ActiveAfter != nil {
		query = query.Where("finish_time IS NULL OR finish_time >= ?", *filter.ActiveAfter)
	}
	if filter.ActiveBefore != nil {
		query = query.Where("start_time <= ?", *filter.ActiveBefore)
	}

	var rows []model.Flag
	if err := query.Order("flag_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query flags")
	}

	items := make([]ports.Flag, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapFlag(row))
	}
	return items, nil
}

// Opinions

func (r *DataflagRepository) SaveOpinion(ctx context.Context, input ports.OpinionCreate) (ports.Opinion, bool, error) {
	if ports.TxFromContext(ctx) != nil {
		return r.saveOpinionTx(ctx, input)
	}

	var saved ports.Opinion
	created := false
	if err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := ports.WithTxContext(ctx, tx)
		op, ok, err := r.saveOpinionTx(txCtx, input)
		if err != nil {
			return err
		}
		saved, created = op, ok
		return nil
	}); err != nil {
		return ports.Opinion{}, false, err
	}
	return saved, created, nil
}

func (r *DataflagRepository) saveOpinionTx(ctx context.Context, input ports.OpinionCreate) (ports.Opinion, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Opinion{}, false, err
	}

	var existing model.Opinion
	err = db.Where(
		"opinion_type_id = ? AND user_id = ? AND lsd = ? AND revision_id = ?",
		input.TypeID, input.UserID, input.LSD, input.RevisionID,
	).Take(&existing).Error

	switch {
	case err == nil:
		// Uniqueness hit: update in place, advance last_edit.
		lastEdit := input.CreationTime
		if lastEdit < existing.LastEdit {
			lastEdit = existing.LastEdit
		}
		updates := map[string]any{
			"decision":  string(input.Decision),
			"last_edit": lastEdit,
			"client_id": input.ClientID,
		}
		if input.Notes != nil {
			updates["notes"] = input.Notes
		}
		if input.Metadata != nil {
			updates["metadata"] = datatypes.JSONMap(input.Metadata)
		}
		if err := db.Model(&model.Opinion{}).Where("opinion_id = ?", existing.OpinionID).Updates(updates).Error; err != nil {
			return ports.Opinion{}, false, errs.Wrap(err, "update opinion")
		}
		opinion, err := r.GetOpinion(ctx, existing.OpinionID)
		return opinion, false, err

	case errors.Is(err, gorm.ErrRecordNotFound):
		row := model.Opinion{
			OpinionTypeID: input.TypeID,
			UserID:        input.UserID,
			Decision:      string(input.Decision),
			LSD:           input.LSD,
			RevisionID:    input.RevisionID,
			CreationTime:  input.CreationTime,
			LastEdit:      input.CreationTime,
			Notes:         input.Notes,
			ClientID:      input.ClientID,
			Metadata:      datatypes.JSONMap(input.Metadata),
		}
		if err := db.Create(&row).Error; err != nil {
			return ports.Opinion{}, false, errs.Wrap(err, "insert opinion")
		}
		opinion, err := r.GetOpinion(ctx, row.OpinionID)
		return opinion, true, err

	default:
		return ports.Opinion{}, false, errs.Wrap(err, "query opinion by uniqueness key")
	}
}

func (r *DataflagRepository) UpdateOpinion(ctx context.Context, id uint64, edit ports.OpinionEdit) (ports.Opinion, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Opinion{}, err
	}

	var existing model.Opinion
	if err := db.Where("opinion_id = ?", id).Take(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Opinion{}, fmt.Errorf("opinion %d: %w", id, ports.ErrOpinionNotFound)
		}
		return ports.Opinion{}, errs.Wrap(err, "query opinion")
	}

	// last_edit never moves backwards.
	lastEdit := edit.EditTime
	if lastEdit < existing.LastEdit {
		lastEdit = existing.LastEdit
	}

	updates := map[string]any{"last_edit": lastEdit}
	if edit.TypeID != nil {
		updates["opinion_type_id"] = *edit.TypeID
	}
	if edit.Decision != nil {
		updates["decision"] = string(*edit.Decision)
	}
	if edit.LSD != nil {
		updates["lsd"] = *edit.LSD
	}
	if edit.Notes != nil {
		updates["notes"] = edit.Notes
	}

	if err := db.Model(&model.Opinion{}).Where("opinion_id = ?", id).Updates(updates).Error; err != nil {
		if isUniqueViolation(err) {
			return ports.Opinion{}, fmt.Errorf("opinion for this (type, user, lsd, revision): %w", ports.ErrAlreadyExists)
		}
		return ports.Opinion{}, errs.Wrap(err, "update opinion")
	}
	return r.GetOpinion(ctx, id)
}

func (r *DataflagRepository) GetOpinion(ctx context.Context, id uint64) (ports.Opinion, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Opinion{}, err
	}

	var row model.Opinion
	if err := opinionQuery(db).Where("opinion_id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Opinion{}, fmt.Errorf("opinion %d: %w", id, ports.ErrOpinionNotFound)
		}
		return ports.Opinion{}, errs.Wrap(err, "query opinion")
	}
	return mapOpinion(row), nil
}

func (r *DataflagRepository) ListOpinions(ctx context.Context, filter ports.OpinionFilter) ([]ports.Opinion, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := opinionQuery(db)
	if filter.RevisionID != nil {
		query = query.Where("revision_id = ?", *filter.RevisionID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.LSD != nil {
		query = query.Where("lsd = ?", *filter.LSD)
	}

	var rows []model.Opinion
	if err := query.Order("opinion_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query opinions")
	}

	items := make([]ports.Opinion, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapOpinion(row))
	}
	return items, nil
}

func (r *DataflagRepository) ListOpinionsSince(ctx context.Context, revisionID uint64, minLastEdit float64) ([]ports.Opinion, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.Opinion
	if err := opinionQuery(db).
		Where("revision_id = ? AND last_edit >= ?", revisionID, minLastEdit).
		Order("opinion_id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query opinions since")
	}

	items := make([]ports.Opinion, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapOpinion(row))
	}
	return items, nil
}

func (r *DataflagRepository) CountConflicting(ctx context.Context, lsd int64, revisionID uint64, decision dataflag.Decision) (int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.Model(&model.Opinion{}).
		Where("lsd = ? AND revision_id = ? AND decision != ?", lsd, revisionID, string(decision)).
		Count(&count).Error; err != nil {
		return 0, errs.Wrap(err, "count conflicting opinions")
	}
	return count, nil
}

// Votes

func (r *DataflagRepository) MaxVoteTime(ctx context.Context, mode string) (float64, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, false, err
	}

	// Mode-global on purpose: the low-water mark is not scoped by revision.
	var result struct {
		MaxTime *float64
	}
	if err := db.Model(&model.Vote{}).
		Select("MAX(time) AS max_time").
		Where("mode = ?", mode).
		Scan(&result).Error; err != nil {
		return 0, false, errs.Wrap(err, "query max vote time")
	}
	if result.MaxTime == nil {
		return 0, false, nil
	}
	return *result.MaxTime, true, nil
}

func (r *DataflagRepository) LatestVoteTimeForOpinion(ctx context.Context, opinionID uint64, mode string) (float64, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, false, err
	}

	var result struct {
		MaxTime *float64
	}
	if err := db.Model(&model.Vote{}).
		Select("MAX(votes.time) AS max_time").
		Joins("JOIN vote_opinions ON vote_opinions.vote_id = votes.vote_id").
		Where("vote_opinions.opinion_id = ? AND votes.mode = ?", opinionID, mode).
		Scan(&result).Error; err != nil {
		return 0, false, errs.Wrap(err, "query latest vote time for opinion")
	}
	if result.MaxTime == nil {
		return 0, false, nil
	}
	return *result.MaxTime, true, nil
}

func (r *DataflagRepository) CreateVote(ctx context.Context, input ports.VoteCreate) (ports.Vote, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Vote{}, err
	}

	row := model.Vote{
		Time:       input.Time,
		Mode:       input.Mode,
		ClientID:   input.ClientID,
		RevisionID: input.RevisionID,
		FlagID:     input.FlagID,
		LSD:        input.LSD,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.Vote{}, errs.Wrap(err, "insert vote")
	}
	return ports.Vote{
		ID:         row.VoteID,
		Time:       row.Time,
		Mode:       row.Mode,
		ClientID:   row.ClientID,
		RevisionID: row.RevisionID,
		FlagID:     row.FlagID,
		LSD:        row.LSD,
	}, nil
}

func (r *DataflagRepository) LinkVoteOpinion(ctx context.Context, voteID, opinionID uint64) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.VoteOpinion{VoteID: voteID, OpinionID: opinionID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert vote opinion link")
	}
	return nil
}

// Mapping helpers

func opinionQuery(db *gorm.DB) *gorm.DB {
	return db.Model(&model.Opinion{}).
		Preload("Type").
		Preload("User").
		Preload("Revision")
}

func mapRevision(row model.Revision) ports.Revision {
	return ports.Revision{ID: row.RevisionID, Name: row.Name, Description: row.Description}
}

func mapClient(row model.Client) ports.Client {
	return ports.Client{ID: row.ClientID, Name: row.Name, Version: row.Version}
}

func mapFlagType(row model.FlagType) ports.CatalogType {
	return ports.CatalogType{
		ID:          row.FlagTypeID,
		Name:        row.Name,
		Description: row.Description,
		Metadata:    dataflag.Metadata(row.Metadata),
	}
}

func mapOpinionType(row model.OpinionType) ports.CatalogType {
	return ports.CatalogType{
		ID:          row.OpinionTypeID,
		Name:        row.Name,
		Description: row.Description,
		Metadata:    dataflag.Metadata(row.Metadata),
	}
}

func mapFlag(row model.Flag) ports.Flag {
	return ports.Flag{
		ID:         row.FlagID,
		TypeID:     row.FlagTypeID,
		TypeName:   row.Type.Name,
		StartTime:  row.StartTime,
		FinishTime: row.FinishTime,
		Metadata:   dataflag.Metadata(row.Metadata),
	}
}

func mapOpinion(row model.Opinion) ports.Opinion {
	return ports.Opinion{
		ID:           row.OpinionID,
		TypeID:       row.OpinionTypeID,
		TypeName:     row.Type.Name,
		UserID:       row.UserID,
		UserName:     row.User.Name,
		Decision:     dataflag.Decision(row.Decision),
		LSD:          row.LSD,
		RevisionID:   row.RevisionID,
		RevisionName: row.Revision.Name,
		CreationTime: row.CreationTime,
		LastEdit:     row.LastEdit,
		Notes:        row.Notes,
		ClientID:     row.ClientID,
		Metadata:     dataflag.Metadata(row.Metadata),
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite surfaces constraint failures as plain errors.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
