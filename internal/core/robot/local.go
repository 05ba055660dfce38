package robot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"botlink/internal/core/domain"
)

const defaultNamespace = "rdk"

type resource struct {
	name  domain.ResourceName
	model string
	attrs map[string]interface{}
}

// LocalRobot is an in-process resource map built from the component list of
// a config response. Drivers live elsewhere; commands are echoed back.
type LocalRobot struct {
	resources map[string]resource
	startedAt time.Time
	buildErr  error
}

func NewLocalRobot(cfg *domain.ConfigResponse) *LocalRobot {
	r := &LocalRobot{
		resources: make(map[string]resource),
		startedAt: time.Now(),
	}
	if cfg == nil {
		return r
	}

	var invalid []string
	for _, c := range cfg.Components {
		if c.Name == "" || c.Type == "" {
			invalid = append(invalid, fmt.Sprintf("%q", c.Name))
			continue
		}
		ns := c.Namespace
		if ns == "" {
			ns = defaultNamespace
		}
		r.resources[c.Name] = resource{
			name: domain.ResourceName{
				Namespace: ns,
				Type:      "component",
				Subtype:   c.Type,
				Name:      c.Name,
			},
			model: c.Model,
			attrs: c.Attributes,
		}
	}
	if len(invalid) > 0 {
		r.buildErr = fmt.Errorf("skipped components missing name or type: %s", strings.Join(invalid, ", "))
	}
	return r
}

// BuildError reports components that could not be constructed, if any.
func (r *LocalRobot) BuildError() error {
	return r.buildErr
}

func (r *LocalRobot) ResourceNames() []domain.ResourceName {
	names := make([]domain.ResourceName, 0, len(r.resources))
	for _, res := range r.resources {
		names = append(names, res.name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Name < names[j].Name })
	return names
}

func (r *LocalRobot) Status(ctx context.Context, names []domain.ResourceName) ([]domain.ResourceStatus, error) {
	if len(names) == 0 {
		names = r.ResourceNames()
	}

	out := make([]domain.ResourceStatus, 0, len(names))
	for _, n := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, ok := r.resources[n.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrResourceNotFound, n.Name)
		}
		out = append(out, domain.ResourceStatus{
			Name: res.name,
			Status: map[string]interface{}{
				"model":          res.model,
				"uptime_seconds": int64(time.Since(r.startedAt).Seconds()),
			},
		})
	}
	return out, nil
}

func (r *LocalRobot) DoCommand(ctx context.Context, name string, cmd map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := r.resources[name]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrResourceNotFound, name)
	}
	resp := make(map[string]interface{}, len(cmd)+1)
	for k, v := range cmd {
		resp[k] = v
	}
	resp["resource"] = name
	return resp, nil
}
