package destinations_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotabus/rotabus/internal/backend"
	"github.com/rotabus/rotabus/internal/destinations"
	"github.com/rotabus/rotabus/internal/store"
)

type fakeBackend struct {
	prefs    *backend.Preferences
	prefsErr error

	setResult *backend.DestinationResult
	setErr    error
	lastKind  backend.DestinationKind
	lastReq   backend.SetDestinationRequest
	setCalls  int
}

func (f *fakeBackend) Preferences(_ context.Context, _, _ string) (*backend.Preferences, error) {
	if f.prefsErr != nil {
		return nil, f.prefsErr
	}
	if f.prefs == nil {
		return &backend.Preferences{}, nil
	}
	return f.prefs, nil
}

func (f *fakeBackend) SetDestination(_ context.Context, _ string, kind backend.DestinationKind, req backend.SetDestinationRequest) (*backend.DestinationResult, error) {
	f.setCalls++
	f.lastKind, f.lastReq = kind, req
	if f.setErr != nil {
		return nil, f.setErr
	}
	if f.setResult == nil {
		return &backend.DestinationResult{}, nil
	}
	return f.setResult, nil
}

func newService(b destinations.Backend) (*destinations.Service, store.Store) {
	st := store.NewMemoryStore()
	return destinations.NewService(b, st, zerolog.Nop()), st
}

func TestService_Get_Defaults(t *testing.T) {
	svc, _ := newService(&fakeBackend{})

	d, err := svc.Get(context.Background(), "tok", "42")
	require.NoError(t, err)

	assert.Equal(t, destinations.Info{Name: "Home", Time: "26 min", Distance: "2.4km"}, d.Home)
	assert.Equal(t, destinations.Info{Name: "Work"}, d.Work)
	assert.True(t, d.Home.Configured())
	assert.False(t, d.Work.Configured())
}

func TestService_Get_BackendPreferences(t *testing.T) {
	tests := []struct {
		name     string
		prefs    *backend.Preferences
		wantHome destinations.Info
		wantWork destinations.Info
	}{
		{
			name: "strings win",
			prefs: &backend.Preferences{
				Home: &backend.Destination{Name: "Casa", Time: "12 min", TimeMinutes: 99, Distance: "1km", DistanceMeters: 5000},
			},
			wantHome: destinations.Info{Name: "Casa", Time: "12 min", Distance: "1km"},
			wantWork: destinations.Info{Name: "Work"},
		},
		{
			name: "numeric fallbacks",
			prefs: &backend.Preferences{
				Work: &backend.Destination{Name: "Escritório", TimeMinutes: 18, DistanceMeters: 5234},
			},
			wantHome: destinations.Info{Name: "Home", Time: "26 min", Distance: "2.4km"},
			wantWork: destinations.Info{Name: "Escritório", Time: "18 min", Distance: "5.23 km"},
		},
		{
			name: "empty home falls back to defaults",
			prefs: &backend.Preferences{
				Home: &backend.Destination{},
				Work: &backend.Destination{},
			},
			wantHome: destinations.Info{Name: "Home", Time: "26 min", Distance: "2.4km"},
			wantWork: destinations.Info{Name: "Work"},
		},
		{
			name: "fractional minutes",
			prefs: &backend.Preferences{
				Home: &backend.Destination{TimeMinutes: 7.5},
			},
			wantHome: destinations.Info{Name: "Home", Time: "7.5 min", Distance: "2.4km"},
			wantWork: destinations.Info{Name: "Work"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(&fakeBackend{prefs: tt.prefs})

			d, err := svc.Get(context.Background(), "tok", "42")
			require.NoError(t, err)
			assert.Equal(t, tt.wantHome, d.Home)
			assert.Equal(t, tt.wantWork, d.Work)
		})
	}
}

func TestService_Get_BackendDownServesCache(t *testing.T) {
	b := &fakeBackend{prefs: &backend.Preferences{Home: &backend.Destination{Name: "Casa", Time: "9 min", Distance: "1 km"}}}
	svc, _ := newService(b)
	ctx := context.Background()

	_, err := svc.Get(ctx, "tok", "42")
	require.NoError(t, err)

	b.prefsErr = backend.ErrUnavailable
	d, err := svc.Get(ctx, "tok", "42")
	require.NoError(t, err)
	assert.Equal(t, "Casa", d.Home.Name)
}

func TestService_Get_ContextCanceled(t *testing.T) {
	svc, _ := newService(&fakeBackend{prefsErr: context.Canceled})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Get(ctx, "tok", "42")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_Set_Home(t *testing.T) {
	b := &fakeBackend{setResult: &backend.DestinationResult{
		Message: "Casa salva",
		Home:    &backend.Destination{TimeMinutes: 14, DistanceMeters: 3100},
	}}
	svc, _ := newService(b)
	ctx := context.Background()

	res, err := svc.Set(ctx, "tok", "42", destinations.KindHome, destinations.SetRequest{
		Name:   "  Minha casa ",
		Point1: " -23.55 , -46.63 ",
		Point2: "-23.56,-46.64",
	})
	require.NoError(t, err)

	assert.Equal(t, backend.KindHome, b.lastKind)
	assert.Equal(t, backend.SetDestinationRequest{
		UserID: "42",
		Point1: "-23.55,-46.63",
		Point2: "-23.56,-46.64",
		Name:   "Minha casa",
	}, b.lastReq)

	assert.Equal(t, "Casa salva", res.Message)
	assert.Equal(t, destinations.Info{Name: "Minha casa", Time: "14 min", Distance: "3.10 km"}, res.Info)

	// The card survives a backend outage.
	b.prefsErr = errors.New("down")
	d, err := svc.Get(ctx, "tok", "42")
	require.NoError(t, err)
	assert.Equal(t, res.Info, d.Home)
}

func TestService_Set_WorkKeepsPreviousValues(t *testing.T) {
	b := &fakeBackend{setResult: &backend.DestinationResult{
		Work: &backend.Destination{Time: "20 min", Distance: "6 km"},
	}}
	svc, _ := newService(b)
	ctx := context.Background()

	_, err := svc.Set(ctx, "tok", "42", destinations.KindWork, destinations.SetRequest{
		Name: "Office", Point1: "1,1", Point2: "2,2",
	})
	require.NoError(t, err)

	b.setResult = &backend.DestinationResult{}
	res, err := svc.Set(ctx, "tok", "42", destinations.KindWork, destinations.SetRequest{
		Point1: "1,1", Point2: "2,2",
	})
	require.NoError(t, err)

	assert.Equal(t, destinations.DefaultSavedMessage, res.Message)
	assert.Equal(t, destinations.Info{Name: "Work", Time: "20 min", Distance: "6 km"}, res.Info)
	assert.Equal(t, "Home", res.Destinations.Home.Name)
}

func TestService_Set_ValidationErrors(t *testing.T) {
	b := &fakeBackend{}
	svc, _ := newService(b)

	_, err := svc.Set(context.Background(), "tok", "42", destinations.KindHome, destinations.SetRequest{
		Point1: "abc",
		Point2: "95,0",
	})
	require.Error(t, err)

	var valErr *destinations.ValidationError
	require.True(t, errors.As(err, &valErr))
	require.Len(t, valErr.Errors, 2)
	assert.Equal(t, "point1", valErr.Errors[0].Field)
	assert.Equal(t, "point2", valErr.Errors[1].Field)
	assert.Equal(t, 0, b.setCalls)
}

func TestService_Set_UnknownKind(t *testing.T) {
	svc, _ := newService(&fakeBackend{})

	_, err := svc.Set(context.Background(), "tok", "42", destinations.Kind("gym"), destinations.SetRequest{Point1: "1,1", Point2: "2,2"})
	assert.ErrorIs(t, err, destinations.ErrUnknownKind)
}

func TestService_Set_BackendError(t *testing.T) {
	backendErr := &backend.Error{Op: "set-home", StatusCode: 400, Message: "ponto inválido", Err: backend.ErrInvalidRequest}
	svc, _ := newService(&fakeBackend{setErr: backendErr})

	_, err := svc.Set(context.Background(), "tok", "42", destinations.KindHome, destinations.SetRequest{Point1: "1,1", Point2: "2,2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrInvalidRequest)

	var be *backend.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "ponto inválido", be.Message)
}

func TestService_RenameHome(t *testing.T) {
	svc, _ := newService(&fakeBackend{prefsErr: errors.New("down")})
	ctx := context.Background()

	require.NoError(t, svc.RenameHome(ctx, "42", "Home"))

	d, err := svc.Get(ctx, "tok", "42")
	require.NoError(t, err)
	assert.Equal(t, "Home", d.Home.Name)
	assert.Equal(t, "26 min", d.Home.Time)
}

func TestService_Forget(t *testing.T) {
	b := &fakeBackend{setResult: &backend.DestinationResult{Home: &backend.Destination{Name: "Casa"}}}
	svc, st := newService(b)
	ctx := context.Background()

	_, err := svc.Set(ctx, "tok", "42", destinations.KindHome, destinations.SetRequest{Point1: "1,1", Point2: "2,2"})
	require.NoError(t, err)

	require.NoError(t, svc.Forget(ctx, "42"))
	_, err = st.Get(ctx, "destinations:42")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
