// Copyright 2011 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ambuild2 implements a persistent, typed dependency graph and the
// incremental build engine that schedules work against it.
package ambuild2

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const createTablesSQL = `
create table if not exists nodes(
	id integer primary key autoincrement,
	type integer not null,
	stamp real not null default 0.0,
	dirty integer not null default 0,
	generated integer not null default 0,
	path text,
	folder integer,
	data blob
);

create table if not exists edges(
	outgoing integer not null,
	incoming integer not null,
	unique (outgoing, incoming)
);

create table if not exists weak_edges(
	outgoing integer not null,
	incoming integer not null,
	unique (outgoing, incoming)
);

create table if not exists dynamic_edges(
	outgoing integer not null,
	incoming integer not null,
	unique (outgoing, incoming)
);

create table if not exists reconfigure(
	stamp real not null default 0.0,
	path text unique
);

create table if not exists vars(
	source_path text not null,
	build_path text not null
);

create index if not exists outgoing_edge on edges(outgoing);
create index if not exists incoming_edge on edges(incoming);
create index if not exists weak_outgoing_edge on weak_edges(outgoing);
create index if not exists weak_incoming_edge on weak_edges(incoming);
create index if not exists dyn_outgoing_edge on dynamic_edges(outgoing);
create index if not exists dyn_incoming_edge on dynamic_edges(incoming);
`

// Store is the single source of truth for the graph, persisted to a SQLite
// database and mirrored in two in-process caches (id -> node, path -> node).
// Both caches are populated lazily and kept coherent by every mutation; a
// Store can FlushCaches at any time without affecting correctness, only
// performance (SPEC_FULL.md §4.1).
type Store struct {
	db   *sql.DB
	tx   *sql.Tx
	disk Disk

	nodeCache map[int64]*Entry
	pathCache map[string]*Entry
}

// Open creates (if needed) and opens the node store at path.
func Open(path string, disk Disk) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrap(err, "ambuild2: open store")
	}
	db.SetMaxOpenConns(1) // Store is the sole writer during a run (SPEC_FULL.md §5).

	s := &Store{
		db:        db,
		disk:      disk,
		nodeCache: make(map[int64]*Entry),
		pathCache: make(map[string]*Entry),
	}
	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ambuild2: create tables")
	}
	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ambuild2: begin")
	}
	s.tx = tx
	return s, nil
}

// Close commits any pending writes and releases the underlying database
// handle.
func (s *Store) Close() error {
	if s.tx != nil {
		if err := s.tx.Commit(); err != nil {
			s.db.Close()
			return err
		}
	}
	return s.db.Close()
}

// Commit flushes the current batch of writes and opens the next one. Called
// at the well-defined checkpoints named in SPEC_FULL.md §4.1: end of dirty
// analysis, and after each task's results are durably applied.
func (s *Store) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return errors.Wrap(err, "ambuild2: commit")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "ambuild2: begin")
	}
	s.tx = tx
	return nil
}

// FlushCaches drops both in-memory caches. Never required for correctness.
func (s *Store) FlushCaches() {
	s.nodeCache = make(map[int64]*Entry)
	s.pathCache = make(map[string]*Entry)
}

// AllPaths returns every path currently cached, for spellcheck suggestions.
// It is a best-effort helper, not a full table scan.
func (s *Store) AllPaths() []string {
	paths := make([]string, 0, len(s.pathCache))
	for p := range s.pathCache {
		paths = append(paths, p)
	}
	return paths
}

func (s *Store) exec(query string, args ...interface{}) (sql.Result, error) {
	return s.tx.Exec(query, args...)
}

func (s *Store) query(query string, args ...interface{}) (*sql.Rows, error) {
	return s.tx.Query(query, args...)
}

// --- insertion -------------------------------------------------------------

// AddSource inserts a Source node. path must be absolute and not already
// present.
func (s *Store) AddSource(path string, generated bool) (*Entry, error) {
	if !filepath.IsAbs(path) {
		return nil, &GraphInvariantError{Msg: fmt.Sprintf("source path must be absolute: %s", path)}
	}
	if _, ok := s.pathCache[path]; ok {
		return nil, &GraphInvariantError{Msg: fmt.Sprintf("duplicate path: %s", path)}
	}
	return s.addFile(Source, path, generated, nil)
}

// FindOrAddSource returns the existing Source node for path, or creates one.
func (s *Store) FindOrAddSource(path string) (*Entry, error) {
	if node, err := s.QueryPath(path); err == nil && node != nil {
		if node.Type != Source {
			return nil, &GraphInvariantError{Msg: fmt.Sprintf("%s exists as non-source node", path)}
		}
		return node, nil
	}
	return s.AddSource(path, false)
}

// AddFolder inserts a Mkdir node under an optional parent folder. path must
// be relative and normalized.
func (s *Store) AddFolder(parent *Entry, path string) (*Entry, error) {
	if filepath.IsAbs(path) {
		return nil, &GraphInvariantError{Msg: fmt.Sprintf("folder path must be relative: %s", path)}
	}
	if normalizePath(path) != path {
		return nil, &GraphInvariantError{Msg: fmt.Sprintf("folder path not normalized: %s", path)}
	}
	if _, ok := s.pathCache[path]; ok {
		return nil, &GraphInvariantError{Msg: fmt.Sprintf("duplicate path: %s", path)}
	}
	return s.addFile(Mkdir, path, false, parent)
}

// AddOutput inserts an Output node. When folder is non-nil, the output's
// dirname must equal the folder's path.
func (s *Store) AddOutput(folder *Entry, path string) (*Entry, error) {
	if filepath.IsAbs(path) {
		return nil, &GraphInvariantError{Msg: fmt.Sprintf("output path must be relative: %s", path)}
	}
	if _, ok := s.pathCache[path]; ok {
		return nil, &GraphInvariantError{Msg: fmt.Sprintf("duplicate path: %s", path)}
	}
	if folder != nil {
		dir := normalizePath(filepath.Dir(path))
		if dir != folder.Path {
			return nil, &GraphInvariantError{
				Msg: fmt.Sprintf("output %s is not inside folder %s", path, folder.Path),
			}
		}
	}
	return s.addFile(Output, path, false, folder)
}

// AddGroup inserts a named aggregation node.
func (s *Store) AddGroup(name string) (*Entry, error) {
	path := GroupPrefix + name
	if _, ok := s.pathCache[path]; ok {
		return nil, &GraphInvariantError{Msg: fmt.Sprintf("duplicate group: %s", name)}
	}
	return s.addFile(Group, path, false, nil)
}

// FindGroup looks up a Group node by name, returning nil if absent.
func (s *Store) FindGroup(name string) (*Entry, error) {
	return s.QueryPath(GroupPrefix + name)
}

func (s *Store) addFile(t NodeType, path string, generated bool, folder *Entry) (*Entry, error) {
	var folderID sql.NullInt64
	if folder != nil {
		folderID = sql.NullInt64{Int64: folder.ID, Valid: true}
	}
	res, err := s.exec(
		"insert into nodes (type, generated, path, folder, dirty) values (?, ?, ?, ?, 1)",
		int(t), boolToInt(generated), path, folderID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "ambuild2: add file %s", path)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	entry := &Entry{
		ID:        id,
		Type:      t,
		Path:      path,
		Folder:    folder,
		Stamp:     0,
		Dirty:     KnownDirty,
		Generated: generated,
	}
	s.cache(entry)
	return entry, nil
}

// AddCommand inserts a new command node, marked dirty. data is serialized
// before storage.
func (s *Store) AddCommand(t NodeType, folder *Entry, data *CommandData) (*Entry, error) {
	if !IsCommand(t) {
		return nil, &GraphInvariantError{Msg: fmt.Sprintf("not a command type: %s", t)}
	}
	blob, err := EncodeCommandData(data)
	if err != nil {
		return nil, err
	}
	var folderID sql.NullInt64
	if folder != nil {
		folderID = sql.NullInt64{Int64: folder.ID, Valid: true}
	}
	res, err := s.exec(
		"insert into nodes (type, folder, data, dirty) values (?, ?, ?, 1)",
		int(t), folderID, blob,
	)
	if err != nil {
		return nil, errors.Wrap(err, "ambuild2: add command")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	entry := &Entry{
		ID:     id,
		Type:   t,
		Folder: folder,
		Blob:   blob,
		Dirty:  KnownDirty,
	}
	s.nodeCache[entry.ID] = entry
	return entry, nil
}

// UpdateCommand updates entry's declaration if type, folder, or data
// changed. If refactoring is true, any detected change is instead reported
// as a fatal RefactoringError (SPEC_FULL.md §4.1, Open Question resolved:
// the comparison is over the canonical gob-encoded bytes of data, not a
// deserialized struct, so any field change, including a change in Argv
// order, counts as a change).
func (s *Store) UpdateCommand(entry *Entry, t NodeType, folder *Entry, data *CommandData, refactoring bool) (bool, error) {
	newBlob, err := EncodeCommandData(data)
	if err != nil {
		return false, err
	}

	sameFolder := (entry.Folder == nil && folder == nil) ||
		(entry.Folder != nil && folder != nil && entry.Folder.ID == folder.ID)
	if entry.Type == t && sameFolder && bytes.Equal(entry.Blob, newBlob) {
		return false, nil
	}

	if refactoring {
		oldFormat := entry.Format()
		changed := *entry
		changed.Type = t
		changed.Folder = folder
		changed.Blob = newBlob
		return false, &RefactoringError{Entry: entry, Old: oldFormat, New: changed.Format()}
	}

	var folderID sql.NullInt64
	if folder != nil {
		folderID = sql.NullInt64{Int64: folder.ID, Valid: true}
	}
	_, err = s.exec(
		"update nodes set type = ?, folder = ?, data = ?, dirty = 1 where id = ?",
		int(t), folderID, newBlob, entry.ID,
	)
	if err != nil {
		return false, errors.Wrap(err, "ambuild2: update command")
	}
	entry.Type = t
	entry.Folder = folder
	entry.Blob = newBlob
	entry.Dirty = KnownDirty
	return true, nil
}

// --- edges ------------------------------------------------------------------

func (s *Store) addEdge(table string, consumer, producer *Entry) error {
	_, err := s.exec(
		fmt.Sprintf("insert into %s (outgoing, incoming) values (?, ?)", table),
		consumer.ID, producer.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "ambuild2: add edge (%s)", table)
	}
	return nil
}

func (s *Store) dropEdge(table string, consumer, producer *Entry) error {
	_, err := s.exec(
		fmt.Sprintf("delete from %s where outgoing = ? and incoming = ?", table),
		consumer.ID, producer.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "ambuild2: drop edge (%s)", table)
	}
	if consumer.strongInputs != nil && table == "edges" {
		delete(consumer.strongInputs, producer.ID)
	}
	if consumer.weakInputs != nil && table == "weak_edges" {
		delete(consumer.weakInputs, producer.ID)
	}
	if consumer.dynamicInputs != nil && table == "dynamic_edges" {
		delete(consumer.dynamicInputs, producer.ID)
	}
	if producer.outgoing != nil && table != "weak_edges" {
		delete(producer.outgoing, consumer.ID)
	}
	return nil
}

// AddStrongEdge declares that consumer structurally depends on producer.
func (s *Store) AddStrongEdge(consumer, producer *Entry) error {
	if err := s.addEdge("edges", consumer, producer); err != nil {
		return err
	}
	if consumer.strongInputs != nil {
		consumer.strongInputs[producer.ID] = producer
	}
	if producer.outgoing != nil {
		producer.outgoing[consumer.ID] = consumer
	}
	return nil
}

// AddWeakEdge declares an ordering-only dependency: consumer must not start
// before producer finishes, but producer's dirtiness never propagates.
func (s *Store) AddWeakEdge(consumer, producer *Entry) error {
	if err := s.addEdge("weak_edges", consumer, producer); err != nil {
		return err
	}
	if consumer.weakInputs != nil {
		consumer.weakInputs[producer.ID] = producer
	}
	return nil
}

// AddDynamicEdge records a dependency discovered from a worker's report.
func (s *Store) AddDynamicEdge(consumer, producer *Entry) error {
	if err := s.addEdge("dynamic_edges", consumer, producer); err != nil {
		return err
	}
	if consumer.dynamicInputs != nil {
		consumer.dynamicInputs[producer.ID] = producer
	}
	if producer.outgoing != nil {
		producer.outgoing[consumer.ID] = consumer
	}
	return nil
}

// DropStrongEdge removes a strong edge.
func (s *Store) DropStrongEdge(consumer, producer *Entry) error {
	return s.dropEdge("edges", consumer, producer)
}

// DropWeakEdge removes a weak edge.
func (s *Store) DropWeakEdge(consumer, producer *Entry) error {
	return s.dropEdge("weak_edges", consumer, producer)
}

// DropDynamicEdge removes a dynamic edge. Plain "delete ... where" with no
// table alias, per the Open Question in SPEC_FULL.md §9/§4.5.1: some SQL
// dialects reject "delete from dynamic_edges edges where ...".
func (s *Store) DropDynamicEdge(consumer, producer *Entry) error {
	return s.dropEdge("dynamic_edges", consumer, producer)
}

// --- dirty bit ---------------------------------------------------------------

// MarkDirty sets the dirty bit in both storage and cache.
func (s *Store) MarkDirty(entry *Entry) error {
	if _, err := s.exec("update nodes set dirty = 1 where id = ?", entry.ID); err != nil {
		return errors.Wrap(err, "ambuild2: mark dirty")
	}
	entry.Dirty = KnownDirty
	return nil
}

// UnmarkDirty clears the dirty bit and updates stamp. If stamp is nil and
// the node is an artifact, the current filesystem mtime is sampled; if that
// sampling fails, the node is left dirty (warn-and-continue, SPEC_FULL.md §7).
func (s *Store) UnmarkDirty(entry *Entry, stamp *float64) error {
	var t float64
	if stamp != nil {
		t = *stamp
	} else if entry.Artifact() {
		sampled, err := s.disk.Stamp(entry.Path)
		if err != nil {
			Warning("could not stat %s to unmark dirty; leaving dirty: %v", entry.Path, err)
			return nil
		}
		t = sampled
	}
	if _, err := s.exec("update nodes set dirty = 0, stamp = ? where id = ?", t, entry.ID); err != nil {
		return errors.Wrap(err, "ambuild2: unmark dirty")
	}
	entry.Dirty = Clean
	entry.Stamp = t
	return nil
}

// --- deletion -----------------------------------------------------------------

// DropEntry removes the node and all edges referencing it in any relation.
func (s *Store) DropEntry(entry *Entry) error {
	if _, err := s.exec("delete from nodes where id = ?", entry.ID); err != nil {
		return errors.Wrap(err, "ambuild2: drop entry")
	}
	for _, table := range []string{"edges", "weak_edges", "dynamic_edges"} {
		if _, err := s.exec(fmt.Sprintf("delete from %s where incoming = ? or outgoing = ?", table), entry.ID, entry.ID); err != nil {
			return errors.Wrapf(err, "ambuild2: drop entry edges (%s)", table)
		}
	}
	delete(s.nodeCache, entry.ID)
	if entry.Path != "" {
		delete(s.pathCache, entry.Path)
	}
	return nil
}

// DropFolder removes a Mkdir node, rmdir-ing its on-disk directory
// (tolerating "already gone"), and fails if any remaining node still
// references it as folder.
func (s *Store) DropFolder(entry *Entry) error {
	if entry.Type != Mkdir {
		return &GraphInvariantError{Msg: "DropFolder on non-Mkdir node"}
	}
	var count int
	row := s.tx.QueryRow("select count(*) from nodes where folder = ?", entry.ID)
	if err := row.Scan(&count); err != nil {
		return errors.Wrap(err, "ambuild2: drop folder")
	}
	if count > 0 {
		return &GraphInvariantError{Msg: fmt.Sprintf("folder %s still in use (%d references)", entry.Path, count)}
	}
	if err := s.disk.RemoveDir(entry.Path); err != nil {
		return errors.Wrapf(err, "ambuild2: rmdir %s", entry.Path)
	}
	return s.DropEntry(entry)
}

// DropOutput removes an Output node, unlinking its on-disk file (tolerating
// "already gone").
func (s *Store) DropOutput(entry *Entry) error {
	if entry.Type != Output {
		return &GraphInvariantError{Msg: "DropOutput on non-Output node"}
	}
	if err := s.disk.RemoveFile(entry.Path); err != nil {
		return errors.Wrapf(err, "ambuild2: unlink %s", entry.Path)
	}
	return s.DropEntry(entry)
}

// DropCommand removes all of a command's strong outputs, then the command
// itself.
func (s *Store) DropCommand(entry *Entry) error {
	outputs, err := s.QueryStrongOutgoing(entry)
	if err != nil {
		return err
	}
	for _, out := range outputs {
		if out.Type != Output {
			return &GraphInvariantError{Msg: fmt.Sprintf("command %s has non-output outgoing node", entry.Format())}
		}
		if err := s.DropOutput(out); err != nil {
			return err
		}
	}
	return s.DropEntry(entry)
}

// DropGroup removes a Group node.
func (s *Store) DropGroup(entry *Entry) error {
	if entry.Type != Group {
		return &GraphInvariantError{Msg: "DropGroup on non-Group node"}
	}
	return s.DropEntry(entry)
}

// --- queries ------------------------------------------------------------------

// QueryNode returns the node with the given id, or nil if absent.
func (s *Store) QueryNode(id int64) (*Entry, error) {
	if e, ok := s.nodeCache[id]; ok {
		return e, nil
	}
	row := s.tx.QueryRow("select type, stamp, dirty, generated, path, folder, data from nodes where id = ?", id)
	return s.importRow(id, row)
}

// QueryPath returns the node at the given path, or nil if absent.
func (s *Store) QueryPath(path string) (*Entry, error) {
	if e, ok := s.pathCache[path]; ok {
		return e, nil
	}
	row := s.tx.QueryRow(
		"select id, type, stamp, dirty, generated, path, folder, data from nodes where path = ?",
		path,
	)
	var id int64
	var typ int
	var stamp float64
	var dirty int
	var generated int
	var p sql.NullString
	var folder sql.NullInt64
	var data []byte
	err := row.Scan(&id, &typ, &stamp, &dirty, &generated, &p, &folder, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "ambuild2: query path %s", path)
	}
	return s.buildEntry(id, typ, stamp, dirty, generated, p, folder, data)
}

func (s *Store) importRow(id int64, row *sql.Row) (*Entry, error) {
	var typ int
	var stamp float64
	var dirty int
	var generated int
	var p sql.NullString
	var folder sql.NullInt64
	var data []byte
	err := row.Scan(&typ, &stamp, &dirty, &generated, &p, &folder, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "ambuild2: query node %d", id)
	}
	return s.buildEntry(id, typ, stamp, dirty, generated, p, folder, data)
}

func (s *Store) buildEntry(id int64, typ int, stamp float64, dirty, generated int, p sql.NullString, folder sql.NullInt64, data []byte) (*Entry, error) {
	if e, ok := s.nodeCache[id]; ok {
		return e, nil
	}
	var folderEntry *Entry
	if folder.Valid {
		f, err := s.QueryNode(folder.Int64)
		if err != nil {
			return nil, err
		}
		folderEntry = f
	}
	entry := &Entry{
		ID:        id,
		Type:      NodeType(typ),
		Stamp:     stamp,
		Dirty:     DirtyState(dirty),
		Generated: generated != 0,
		Folder:    folderEntry,
		Blob:      data,
	}
	if p.Valid {
		entry.Path = p.String
	}
	s.cache(entry)
	return entry, nil
}

func (s *Store) cache(entry *Entry) {
	s.nodeCache[entry.ID] = entry
	if entry.Path != "" {
		s.pathCache[entry.Path] = entry
	}
}

func scanEntries(rows *sql.Rows, s *Store) ([]*Entry, error) {
	defer rows.Close()
	var out []*Entry
	for rows.Next() {
		var id int64
		var typ int
		var stamp float64
		var dirty int
		var generated int
		var p sql.NullString
		var folder sql.NullInt64
		var data []byte
		if err := rows.Scan(&id, &typ, &stamp, &dirty, &generated, &p, &folder, &data); err != nil {
			return nil, err
		}
		entry, err := s.buildEntry(id, typ, stamp, dirty, generated, p, folder, data)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

const selectNodeCols = "select id, type, stamp, dirty, generated, path, folder, data from nodes"

// queryEdgeSet selects selectCol from table where whereCol = node.ID, then
// resolves each returned id to its Entry. selectCol and whereCol are always
// the two opposite columns of an (outgoing, incoming) edge table.
func (s *Store) queryEdgeSet(table, selectCol, whereCol string, node *Entry) ([]*Entry, error) {
	rows, err := s.query(fmt.Sprintf("select %s from %s where %s = ?", selectCol, table, whereCol), node.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "ambuild2: query %s", table)
	}
	defer rows.Close()
	var out []*Entry
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		e, err := s.QueryNode(id)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// QueryStrongOutgoing returns nodes that strong-depend on node (not cached).
func (s *Store) QueryStrongOutgoing(node *Entry) ([]*Entry, error) {
	return s.queryEdgeSet("edges", "outgoing", "incoming", node)
}

// QueryOutgoing returns the union of strong and dynamic outgoing edges,
// memoized on node.
func (s *Store) QueryOutgoing(node *Entry) (map[int64]*Entry, error) {
	if node.outgoing != nil {
		return node.outgoing, nil
	}
	node.outgoing = make(map[int64]*Entry)
	for _, table := range []string{"edges", "dynamic_edges"} {
		entries, err := s.queryEdgeSet(table, "outgoing", "incoming", node)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			node.outgoing[e.ID] = e
		}
	}
	return node.outgoing, nil
}

// QueryStrongInputs returns node's strong incoming edges, memoized.
func (s *Store) QueryStrongInputs(node *Entry) (map[int64]*Entry, error) {
	if node.strongInputs != nil {
		return node.strongInputs, nil
	}
	entries, err := s.queryEdgeSet("edges", "incoming", "outgoing", node)
	if err != nil {
		return nil, err
	}
	node.strongInputs = toSet(entries)
	return node.strongInputs, nil
}

// QueryWeakInputs returns node's weak incoming edges, memoized.
func (s *Store) QueryWeakInputs(node *Entry) (map[int64]*Entry, error) {
	if node.weakInputs != nil {
		return node.weakInputs, nil
	}
	entries, err := s.queryEdgeSet("weak_edges", "incoming", "outgoing", node)
	if err != nil {
		return nil, err
	}
	node.weakInputs = toSet(entries)
	return node.weakInputs, nil
}

// QueryDynamicInputs returns node's dynamic incoming edges, memoized.
func (s *Store) QueryDynamicInputs(node *Entry) (map[int64]*Entry, error) {
	if node.dynamicInputs != nil {
		return node.dynamicInputs, nil
	}
	entries, err := s.queryEdgeSet("dynamic_edges", "incoming", "outgoing", node)
	if err != nil {
		return nil, err
	}
	node.dynamicInputs = toSet(entries)
	return node.dynamicInputs, nil
}

func toSet(entries []*Entry) map[int64]*Entry {
	out := make(map[int64]*Entry, len(entries))
	for _, e := range entries {
		out[e.ID] = e
	}
	return out
}

func (s *Store) scanWhere(where string) ([]*Entry, error) {
	rows, err := s.query(selectNodeCols + " where " + where)
	if err != nil {
		return nil, errors.Wrapf(err, "ambuild2: scan (%s)", where)
	}
	return scanEntries(rows, s)
}

// QueryMkdir returns all Mkdir nodes.
func (s *Store) QueryMkdir() ([]*Entry, error) {
	return s.scanWhere(fmt.Sprintf("type = %d", int(Mkdir)))
}

// QueryKnownDirty returns every dirty node except folders.
func (s *Store) QueryKnownDirty() ([]*Entry, error) {
	return s.scanWhere(fmt.Sprintf("dirty = 1 and type != %d", int(Mkdir)))
}

// QueryMaybeDirty returns clean artifacts that need an mtime check: Source
// and Output nodes. Mkdir never appears here (folders are handled
// separately by QueryMkdir).
func (s *Store) QueryMaybeDirty() ([]*Entry, error) {
	return s.scanWhere(fmt.Sprintf("dirty = 0 and (type = %d or type = %d)", int(Source), int(Output)))
}

// QueryCommands returns every command-category node.
func (s *Store) QueryCommands() ([]*Entry, error) {
	return s.scanWhere(fmt.Sprintf("type != %d and type != %d and type != %d and type != %d",
		int(Source), int(Output), int(Group), int(Mkdir)))
}

// QueryGroups returns every Group node.
func (s *Store) QueryGroups() ([]*Entry, error) {
	return s.scanWhere(fmt.Sprintf("type = %d", int(Group)))
}

// QueryAllNodes returns every node in the graph, for introspection
// (QueryGraph, WriteDot). Unlike AllPaths, this is a full table scan.
func (s *Store) QueryAllNodes() ([]*Entry, error) {
	return s.scanWhere("1 = 1")
}

// --- reconfigure table --------------------------------------------------------

// ScriptEntry is one row of the reconfigure table.
type ScriptEntry struct {
	RowID int64
	Path  string
	Stamp float64
}

// AddOrUpdateScript upserts a build-script path into the reconfigure table,
// sampling its current mtime.
func (s *Store) AddOrUpdateScript(path string) error {
	stamp, err := s.disk.Stamp(path)
	if err != nil {
		return errors.Wrapf(err, "ambuild2: stat script %s", path)
	}
	_, err = s.exec("insert or replace into reconfigure (path, stamp) values (?, ?)", path, stamp)
	if err != nil {
		return errors.Wrap(err, "ambuild2: add script")
	}
	return nil
}

// DropScript removes path from the reconfigure table.
func (s *Store) DropScript(path string) error {
	_, err := s.exec("delete from reconfigure where path = ?", path)
	return err
}

// QueryScripts lists the reconfigure table.
func (s *Store) QueryScripts() ([]ScriptEntry, error) {
	rows, err := s.query("select rowid, path, stamp from reconfigure")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScriptEntry
	for rows.Next() {
		var e ScriptEntry
		if err := rows.Scan(&e.RowID, &e.Path, &e.Stamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- vars ----------------------------------------------------------------------

// Vars is the serialized record storing sourcePath and buildPath
// (SPEC_FULL.md §6.1).
type Vars struct {
	SourcePath string
	BuildPath  string
}

// GetVars reads the single vars row, or (Vars{}, false) if none exists yet.
func (s *Store) GetVars() (Vars, bool, error) {
	row := s.tx.QueryRow("select source_path, build_path from vars limit 1")
	var v Vars
	err := row.Scan(&v.SourcePath, &v.BuildPath)
	if err == sql.ErrNoRows {
		return Vars{}, false, nil
	}
	if err != nil {
		return Vars{}, false, err
	}
	return v, true, nil
}

// SetVars replaces the vars row.
func (s *Store) SetVars(v Vars) error {
	if _, err := s.exec("delete from vars"); err != nil {
		return err
	}
	_, err := s.exec("insert into vars (source_path, build_path) values (?, ?)", v.SourcePath, v.BuildPath)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// DatabasePath returns the conventional database path under buildPath:
// "<buildPath>/.ambuild2/graph.sqlite3" (the directory is the one named in
// SPEC_FULL.md §6.1).
func DatabasePath(buildPath string) string {
	return filepath.Join(buildPath, ".ambuild2", "graph.sqlite3")
}

// EnsureAmbuildDir makes sure <buildPath>/.ambuild2 exists.
func EnsureAmbuildDir(buildPath string) error {
	return os.MkdirAll(filepath.Join(buildPath, ".ambuild2"), 0o777)
}
