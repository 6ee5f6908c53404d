// Copyright 2025 The pki-server Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package repository stores the certificates, certificate requests and
// profiles of a subsystem in a sqlite database.
package repository

import (
	"context"
	"crypto/x509"
	"database/sql"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/storage/db"
)

const (
	// SchemaVersion is the version of the database schema.
	SchemaVersion = 1
	// Schema is the database schema.
	Schema = `
	CREATE TABLE certs (
		serial TEXT NOT NULL PRIMARY KEY,
		subject TEXT NOT NULL,
		issuer TEXT NOT NULL,
		not_before INTEGER NOT NULL,
		not_after INTEGER NOT NULL,
		status TEXT NOT NULL,
		profile TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		data BLOB NOT NULL
	);
	CREATE TABLE requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		profile TEXT NOT NULL DEFAULT '',
		request TEXT NOT NULL,
		cert_serial TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE profiles (
		id TEXT NOT NULL PRIMARY KEY,
		config TEXT NOT NULL,
		enabled INTEGER NOT NULL
	);`

	// FileName is the name of the database file within the repository
	// directory.
	FileName = "repository.db"
)

const (
	insertCert = `
		INSERT INTO certs (serial, subject, issuer, not_before, not_after, status, profile,
			request_id, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	selectCerts = `
		SELECT serial, subject, issuer, not_before, not_after, status, profile, request_id, data
		FROM certs
	`
	deleteCert = `DELETE FROM certs WHERE serial=?`

	insertRequest = `
		INSERT INTO requests (type, status, profile, request, cert_serial)
		VALUES (?, ?, ?, ?, ?)
	`
	selectRequests = `
		SELECT id, type, status, profile, request, cert_serial FROM requests
	`
	completeRequest = `UPDATE requests SET status=?, cert_serial=? WHERE id=?`

	upsertProfile = `
		INSERT INTO profiles (id, config, enabled) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET config=excluded.config, enabled=excluded.enabled
	`
	selectProfiles = `SELECT id, config, enabled FROM profiles`
)

// CertStatus is the status of a certificate record.
type CertStatus string

const (
	StatusValid   CertStatus = "VALID"
	StatusRevoked CertStatus = "REVOKED"
)

// Request types and states.
const (
	RequestTypeEnrollment = "enrollment"

	RequestPending  = "pending"
	RequestComplete = "complete"
)

// CertRecord is a certificate stored in the repository.
type CertRecord struct {
	Serial    *big.Int
	Subject   string
	Issuer    string
	NotBefore time.Time
	NotAfter  time.Time
	Status    CertStatus
	Profile   string
	RequestID string
	Raw       []byte
}

// NewCertRecord creates a record for cert.
func NewCertRecord(cert *x509.Certificate, profile, requestID string) CertRecord {
	return CertRecord{
		Serial:    cert.SerialNumber,
		Subject:   cert.Subject.String(),
		Issuer:    cert.Issuer.String(),
		NotBefore: cert.NotBefore.UTC(),
		NotAfter:  cert.NotAfter.UTC(),
		Status:    StatusValid,
		Profile:   profile,
		RequestID: requestID,
		Raw:       cert.Raw,
	}
}

// Certificate parses the stored certificate.
func (r CertRecord) Certificate() (*x509.Certificate, error) {
	return x509.ParseCertificate(r.Raw)
}

// Request is a certificate request stored in the repository.
type Request struct {
	ID         string
	Type       string
	Status     string
	Profile    string
	Request    string
	CertSerial string
}

// Profile is a certificate profile stored in the repository.
type Profile struct {
	ID      string
	Config  string
	Enabled bool
}

// FormatSerial renders a serial number in the canonical form used as
// database key, e.g. 0x1f.
func FormatSerial(serial *big.Int) string {
	return "0x" + serial.Text(16)
}

// ParseSerial parses a serial number given either as hexadecimal number with
// 0x prefix or as decimal number.
func ParseSerial(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	digits := s
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		base, digits = 16, rest
	}
	serial, ok := new(big.Int).SetString(digits, base)
	if !ok || digits == "" || serial.Sign() < 0 {
		return nil, serrors.New("invalid serial number", "serial", s)
	}
	return serial, nil
}

type sqler interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is the repository database.
type DB struct {
	conn *sql.DB
	db   sqler
}

// Open opens the repository database at path, creating it if necessary.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, serrors.Wrap("creating repository directory", err, "path", path)
	}
	sqlDB, err := db.NewSqlite(path, Schema, SchemaVersion)
	if err != nil {
		return nil, serrors.Wrap("opening repository", err, "path", path)
	}
	return &DB{conn: sqlDB, db: sqlDB}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// WithTx runs fn in a transaction. The changes fn makes through tx are
// committed if it returns nil and rolled back otherwise. Calling WithTx on a
// transaction runs fn in that transaction.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx *DB) error) error {
	if d.conn == nil {
		return fn(ctx, d)
	}
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return db.NewTxError("beginning transaction", err)
	}
	if err := fn(ctx, &DB{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, db.NewTxError("rolling back transaction", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return db.NewTxError("committing transaction", err)
	}
	return nil
}

// InsertCert adds a certificate record. Serial numbers are unique.
func (d *DB) InsertCert(ctx context.Context, rec CertRecord) error {
	if rec.Serial == nil {
		return db.NewInputDataError("serial number missing", nil)
	}
	_, err := d.db.ExecContext(ctx, insertCert, FormatSerial(rec.Serial), rec.Subject,
		rec.Issuer, rec.NotBefore.Unix(), rec.NotAfter.Unix(), string(rec.Status), rec.Profile,
		rec.RequestID, rec.Raw)
	if err != nil {
		return db.NewWriteError("inserting certificate", err,
			"serial", FormatSerial(rec.Serial))
	}
	return nil
}

// GetCert returns the certificate record with the given serial number.
func (d *DB) GetCert(ctx context.Context, serial *big.Int) (CertRecord, error) {
	recs, err := d.queryCerts(ctx, selectCerts+" WHERE serial=?", FormatSerial(serial))
	if err != nil {
		return CertRecord{}, err
	}
	if len(recs) == 0 {
		return CertRecord{}, db.NewNotFoundError("certificate", "serial", FormatSerial(serial))
	}
	return recs[0], nil
}

// ListCerts returns all certificate records ordered by issuance time.
func (d *DB) ListCerts(ctx context.Context) ([]CertRecord, error) {
	return d.queryCerts(ctx, selectCerts+" ORDER BY not_before, serial")
}

// DeleteCert removes the certificate with the given serial number.
func (d *DB) DeleteCert(ctx context.Context, serial *big.Int) error {
	res, err := d.db.ExecContext(ctx, deleteCert, FormatSerial(serial))
	if err != nil {
		return db.NewWriteError("deleting certificate", err, "serial", FormatSerial(serial))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return db.NewWriteError("deleting certificate", err, "serial", FormatSerial(serial))
	}
	if n == 0 {
		return db.NewNotFoundError("certificate", "serial", FormatSerial(serial))
	}
	return nil
}

func (d *DB) queryCerts(ctx context.Context, query string, args ...any) ([]CertRecord, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.NewReadError("querying certificates", err)
	}
	defer rows.Close()
	var recs []CertRecord
	for rows.Next() {
		var (
			rec                 CertRecord
			serial, status      string
			notBefore, notAfter int64
		)
		err := rows.Scan(&serial, &rec.Subject, &rec.Issuer, &notBefore, &notAfter, &status,
			&rec.Profile, &rec.RequestID, &rec.Raw)
		if err != nil {
			return nil, db.NewReadError("scanning certificate", err)
		}
		if rec.Serial, err = ParseSerial(serial); err != nil {
			return nil, db.NewDataError("invalid serial", err, "serial", serial)
		}
		rec.NotBefore = time.Unix(notBefore, 0).UTC()
		rec.NotAfter = time.Unix(notAfter, 0).UTC()
		rec.Status = CertStatus(status)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating certificates", err)
	}
	return recs, nil
}

// InsertRequest adds a request and returns its ID.
func (d *DB) InsertRequest(ctx context.Context, req Request) (string, error) {
	if req.Type == "" {
		req.Type = RequestTypeEnrollment
	}
	if req.Status == "" {
		req.Status = RequestPending
	}
	res, err := d.db.ExecContext(ctx, insertRequest, req.Type, req.Status, req.Profile,
		req.Request, req.CertSerial)
	if err != nil {
		return "", db.NewWriteError("inserting request", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", db.NewWriteError("reading request ID", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// GetRequest returns the request with the given ID.
func (d *DB) GetRequest(ctx context.Context, id string) (Request, error) {
	num, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return Request{}, db.NewInputDataError("invalid request ID", err, "id", id)
	}
	reqs, err := d.queryRequests(ctx, selectRequests+" WHERE id=?", num)
	if err != nil {
		return Request{}, err
	}
	if len(reqs) == 0 {
		return Request{}, db.NewNotFoundError("request", "id", id)
	}
	return reqs[0], nil
}

// FindRequests returns the requests ordered by ID. If serial is not nil, only
// the requests that resulted in the certificate with that serial number are
// returned.
func (d *DB) FindRequests(ctx context.Context, serial *big.Int) ([]Request, error) {
	if serial == nil {
		return d.queryRequests(ctx, selectRequests+" ORDER BY id")
	}
	return d.queryRequests(ctx, selectRequests+" WHERE cert_serial=? ORDER BY id",
		FormatSerial(serial))
}

// CompleteRequest marks the request as complete and links it to the issued
// certificate.
func (d *DB) CompleteRequest(ctx context.Context, id string, serial *big.Int) error {
	num, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return db.NewInputDataError("invalid request ID", err, "id", id)
	}
	res, err := d.db.ExecContext(ctx, completeRequest, RequestComplete, FormatSerial(serial), num)
	if err != nil {
		return db.NewWriteError("updating request", err, "id", id)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return db.NewNotFoundError("request", "id", id)
	}
	return nil
}

func (d *DB) queryRequests(ctx context.Context, query string, args ...any) ([]Request, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.NewReadError("querying requests", err)
	}
	defer rows.Close()
	var reqs []Request
	for rows.Next() {
		var (
			req Request
			id  int64
		)
		err := rows.Scan(&id, &req.Type, &req.Status, &req.Profile, &req.Request,
			&req.CertSerial)
		if err != nil {
			return nil, db.NewReadError("scanning request", err)
		}
		req.ID = strconv.FormatInt(id, 10)
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating requests", err)
	}
	return reqs, nil
}

// PutProfile inserts or replaces a profile.
func (d *DB) PutProfile(ctx context.Context, p Profile) error {
	if p.ID == "" {
		return db.NewInputDataError("profile ID missing", nil)
	}
	if _, err := d.db.ExecContext(ctx, upsertProfile, p.ID, p.Config, p.Enabled); err != nil {
		return db.NewWriteError("storing profile", err, "id", p.ID)
	}
	return nil
}

// GetProfile returns the profile with the given ID.
func (d *DB) GetProfile(ctx context.Context, id string) (Profile, error) {
	var p Profile
	err := d.db.QueryRowContext(ctx, selectProfiles+" WHERE id=?", id).
		Scan(&p.ID, &p.Config, &p.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, db.NewNotFoundError("profile", "id", id)
	}
	if err != nil {
		return Profile{}, db.NewReadError("reading profile", err, "id", id)
	}
	return p, nil
}

// ListProfiles returns all profiles ordered by ID.
func (d *DB) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := d.db.QueryContext(ctx, selectProfiles+" ORDER BY id")
	if err != nil {
		return nil, db.NewReadError("querying profiles", err)
	}
	defer rows.Close()
	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Config, &p.Enabled); err != nil {
			return nil, db.NewReadError("scanning profile", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating profiles", err)
	}
	return profiles, nil
}
