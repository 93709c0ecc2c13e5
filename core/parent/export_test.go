package parent

import (
	"io"
	"time"
)

func (svc *Service) SetNow(now func() time.Time) { svc.now = now }
func (svc *Service) SetRandom(r io.Reader)       { svc.random = r }
