package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/classmark/examhub/internal/rbac"
)

type userUpsert struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
}

// BulkUpsertUsersHandler accepts a JSON array of accounts and creates or
// updates them in one transaction. Admin only; passwords are bcrypt-hashed.
func BulkUpsertUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var users []userUpsert
		if err := json.NewDecoder(r.Body).Decode(&users); err != nil {
			httpError(w, "bad json", http.StatusBadRequest)
			return
		}
		if len(users) == 0 {
			httpError(w, "no users", http.StatusBadRequest)
			return
		}
		for i, u := range users {
			if u.Username == "" || u.Password == "" {
				httpError(w, fmt.Sprintf("row %d: username and password required", i), http.StatusBadRequest)
				return
			}
			if !rbac.ValidRole(u.Role) {
				httpError(w, fmt.Sprintf("row %d: unknown role %q", i, u.Role), http.StatusBadRequest)
				return
			}
		}
		n, err := upsertUsers(r.Context(), db, users)
		if err != nil {
			httpError(w, "upsert users", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"upserted": n})
	}
}

func upsertUsers(ctx context.Context, db *sql.DB, users []userUpsert) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	n := 0
	now := time.Now().Unix()
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), 12)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (id, username, password_hash, role, full_name, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (username) DO UPDATE SET
			  password_hash = EXCLUDED.password_hash,
			  role          = EXCLUDED.role,
			  full_name     = EXCLUDED.full_name`,
			uuid.NewString(), u.Username, string(hash), u.Role, u.FullName, now)
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, tx.Commit()
}

type userRow struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	FullName  string `json:"full_name"`
	CreatedAt int64  `json:"created_at"`
}

// GET /users?role=student — admin listing with an optional role filter.
func ListUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := r.URL.Query().Get("role")
		limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
		offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

		var (
			rows *sql.Rows
			err  error
		)
		if role != "" {
			rows, err = db.QueryContext(r.Context(), `
				SELECT id, username, role, full_name, created_at FROM users
				WHERE role=$1 ORDER BY username LIMIT $2 OFFSET $3`, role, limit, offset)
		} else {
			rows, err = db.QueryContext(r.Context(), `
				SELECT id, username, role, full_name, created_at FROM users
				ORDER BY username LIMIT $1 OFFSET $2`, limit, offset)
		}
		if err != nil {
			httpError(w, "list users", http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		out := []userRow{}
		for rows.Next() {
			var u userRow
			if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.FullName, &u.CreatedAt); err != nil {
				httpError(w, "scan user", http.StatusInternalServerError)
				return
			}
			out = append(out, u)
		}
		if err := rows.Err(); err != nil {
			httpError(w, "list users", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
