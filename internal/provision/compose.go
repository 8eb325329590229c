package provision

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"yqhp/arena/pkg/types"
)

// Label keys attached to every service so the runtime can find its own containers.
const (
	LabelProject = "arena.project"
	LabelRole    = "arena.role"
)

type composeFile struct {
	Name     string                    `yaml:"name,omitempty"`
	Services map[string]composeService `yaml:"services"`
}

type composeBuild struct {
	Context string `yaml:"context"`
}

type composeService struct {
	Image         string            `yaml:"image,omitempty"`
	Build         *composeBuild     `yaml:"build,omitempty"`
	ContainerName string            `yaml:"container_name,omitempty"`
	Environment   map[string]string `yaml:"environment,omitempty"`
	Ports         []string          `yaml:"ports,omitempty"`
	Volumes       []string          `yaml:"volumes,omitempty"`
	MemLimit      string            `yaml:"mem_limit,omitempty"`
	DependsOn     []string          `yaml:"depends_on,omitempty"`
	Labels        map[string]string `yaml:"labels,omitempty"`
}

// RenderCompose renders plan as a compose document. Each worker mounts only
// its own workspace directory.
func RenderCompose(cfg Config, plan *Plan) ([]byte, error) {
	doc := composeFile{
		Name:     cfg.Project,
		Services: make(map[string]composeService, len(plan.Workers)+1),
	}

	doc.Services[plan.Coordination.Name] = composeService{
		Image: plan.Coordination.Image,
		Ports: []string{fmt.Sprintf("%d:%d", plan.Coordination.Port, plan.Coordination.Port)},
		Labels: map[string]string{
			LabelProject: cfg.Project,
			LabelRole:    "coordination",
		},
	}

	for _, w := range plan.Workers {
		svc := composeService{
			Image:       cfg.Image,
			Environment: w.Env,
			Ports:       []string{fmt.Sprintf("%d:%d", w.Port, w.Port)},
			Volumes:     []string{fmt.Sprintf("%s:%s", w.Workspace, ContainerWorkspace)},
			MemLimit:    w.Memory,
			DependsOn:   []string{plan.Coordination.Name},
			Labels: map[string]string{
				LabelProject: cfg.Project,
				LabelRole:    "worker",
			},
		}
		if cfg.BuildContext != "" {
			svc.Build = &composeBuild{Context: cfg.BuildContext}
		}
		doc.Services[w.ID] = svc
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("render compose file: %w", err)
	}
	return data, nil
}

func writeDecomposition(path string, dec *types.Decomposition) error {
	data, err := json.MarshalIndent(dec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal decomposition: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write decomposition: %w", err)
	}
	return nil
}
