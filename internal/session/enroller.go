package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-recall/internal/constants"
	"github.com/kozaktomas/face-recall/internal/database"
	"github.com/kozaktomas/face-recall/internal/facematch"
	"github.com/kozaktomas/face-recall/internal/imagestore"
)

// IdentityInserter persists newly enrolled identities.
type IdentityInserter interface {
	InsertIdentity(ctx context.Context, ident facematch.KnownIdentity) error
}

// Enroller turns a full enrollment buffer into a stored identity and captured image.
type Enroller struct {
	identities IdentityInserter
	images     imagestore.Store
	name       string
	owner      string
	now        func() time.Time
}

// NewEnroller creates an enroller. Empty name/owner select the placeholders
// "NewPerson" and "patient_new".
func NewEnroller(identities IdentityInserter, images imagestore.Store, name, owner string) *Enroller {
	if name == "" {
		name = constants.DefaultEnrolledName
	}
	if owner == "" {
		owner = constants.DefaultEnrolledOwner
	}
	return &Enroller{
		identities: identities,
		images:     images,
		name:       name,
		owner:      owner,
		now:        time.Now,
	}
}

// Enroll finalizes the tracker. On success the new identity is returned and the
// tracker is Finalized. On failure the tracker keeps its buffer, so the next unknown
// face retries; a nil identity with a nil error means the tracker was not ready.
func (e *Enroller) Enroll(ctx context.Context, tracker *facematch.EnrollmentTracker, frame image.Image) (*facematch.KnownIdentity, error) {
	var enrolled *facematch.KnownIdentity

	err := tracker.Finalize(func(mean []float32) error {
		ts := e.now()
		stamp := ts.Format(constants.EnrollmentTimeLayout)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: constants.FaceServiceJPEGQuality}); err != nil {
			return fmt.Errorf("encode captured frame: %w", err)
		}
		path, err := e.images.Save(ctx, "new_person_"+stamp+".jpg", buf.Bytes())
		if err != nil {
			return fmt.Errorf("save captured image: %w", err)
		}

		ident := facematch.KnownIdentity{
			ID:          e.name + "_" + stamp,
			OwnerID:     e.owner,
			DisplayName: e.name,
			Embedding:   mean,
			ImagePath:   path,
			CreatedAt:   ts,
		}
		err = e.identities.InsertIdentity(ctx, ident)
		if errors.Is(err, database.ErrIdentityExists) {
			// Another enrollment landed in the same second.
			ident.ID = e.name + "_" + stamp + "_" + uuid.NewString()[:8]
			err = e.identities.InsertIdentity(ctx, ident)
		}
		if err != nil {
			return fmt.Errorf("insert identity: %w", err)
		}

		enrolled = &ident
		return nil
	})
	if err != nil {
		return nil, err
	}
	return enrolled, nil
}
