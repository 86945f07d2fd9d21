package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"Pnode/pkg/broker"
	"Pnode/pkg/node"
	"Pnode/pkg/services"
	"Pnode/pkg/util"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

// Object is anything the session owns and shuts down with itself.
type Object interface {
	ObjID() int
	Shutdown()
}

// Session owns the objects of one emulation run and their working directory.
type Session struct {
	id       string
	dir      string
	broker   *broker.Broker
	services *services.Manager
	objects  *xsync.Map[int, Object] // maps object ids to nodes and networks
	logger   util.Logger
}

// New creates a session with a fresh id and its directory <root>/pnode.<id8>.
func New(root string, b *broker.Broker, svc *services.Manager) (*Session, error) {
	id := uuid.New().String()
	dir := filepath.Join(root, "pnode."+id[:8])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}

	logger := util.GetLogger("session")
	s := &Session{
		id:       id,
		dir:      dir,
		broker:   b,
		services: svc,
		objects:  xsync.NewMap[int, Object](),
		logger:   logger.With().Str("session", id).Logger(),
	}
	s.logger.Info().Str("dir", dir).Msg("session created")
	return s, nil
}

func (s *Session) ID() string  { return s.id }
func (s *Session) Dir() string { return s.dir }

// Broker returns the tunnel broker, nil if the session has none.
func (s *Session) Broker() node.Broker {
	if s.broker == nil {
		return nil
	}
	return s.broker
}

// Services returns the service manager, nil if the session has none.
func (s *Session) Services() node.ServiceManager {
	if s.services == nil {
		return nil
	}
	return s.services
}

// AddObject registers obj under its id.
func (s *Session) AddObject(obj Object) error {
	if _, loaded := s.objects.LoadOrStore(obj.ObjID(), obj); loaded {
		return fmt.Errorf("object id %d already in use", obj.ObjID())
	}
	return nil
}

func (s *Session) GetObject(id int) (Object, bool) {
	return s.objects.Load(id)
}

// DelObject forgets the object without shutting it down.
func (s *Session) DelObject(id int) {
	s.objects.Delete(id)
}

// Objects returns the registered objects ordered by id.
func (s *Session) Objects() []Object {
	out := make([]Object, 0, s.objects.Size())
	s.objects.Range(func(_ int, obj Object) bool {
		out = append(out, obj)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ObjID() < out[j].ObjID() })
	return out
}

// Shutdown shuts every object down, highest id first, and removes the
// session directory.
func (s *Session) Shutdown() {
	objects := s.Objects()
	for i := len(objects) - 1; i >= 0; i-- {
		objects[i].Shutdown()
		s.objects.Delete(objects[i].ObjID())
	}
	if err := os.RemoveAll(s.dir); err != nil {
		s.logger.Error().Err(err).Str("dir", s.dir).Msg("error removing session directory")
	}
	s.logger.Info().Msg("session shut down")
}
