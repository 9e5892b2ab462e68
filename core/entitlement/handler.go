package entitlement

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/edushop/edushop/api/web"
	"github.com/edushop/edushop/api/weberr"
	"github.com/edushop/edushop/core/activation"
	"github.com/edushop/edushop/core/book"
	"github.com/edushop/edushop/core/claims"
	"github.com/edushop/edushop/core/course"
	"github.com/jmoiron/sqlx"
)

// HandleCoursesOwned lists the courses the caller is enrolled in.
func HandleCoursesOwned(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		es, err := FetchEnrollments(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("fetching enrollments: %w", err)
		}

		courses := make([]course.Course, 0, len(es))
		for _, e := range es {
			c, err := course.Fetch(ctx, db, e.CourseID)
			if err != nil {
				return fmt.Errorf("fetching course[%s]: %w", e.CourseID, err)
			}
			courses = append(courses, c)
		}

		return web.Respond(ctx, w, courses, http.StatusOK)
	}
}

// HandleBooksOwned lists the books the caller has activated.
func HandleBooksOwned(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ubs, err := activation.FetchUserBooks(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("fetching user books: %w", err)
		}

		books := make([]book.Book, 0, len(ubs))
		for _, ub := range ubs {
			b, err := book.Fetch(ctx, db, ub.BookID)
			if err != nil {
				return fmt.Errorf("fetching book[%s]: %w", ub.BookID, err)
			}
			books = append(books, b)
		}

		return web.Respond(ctx, w, books, http.StatusOK)
	}
}
