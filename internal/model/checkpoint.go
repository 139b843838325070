package model

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

type savedParam struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

type savedModel struct {
	Arch   string       `json:"arch"`
	Params []savedParam `json:"params"`
}

const archName = "lenet-gap"

// Save writes the model parameters as JSON.
func (m *LeNet) Save(path string) error {
	s := savedModel{Arch: archName}
	for _, p := range m.Parameters() {
		s.Params = append(s.Params, savedParam{Name: p.Name, Shape: p.Shape, Data: p.Data})
	}
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode checkpoint")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write checkpoint %s", path)
	}
	return nil
}

// Load restores parameters saved by Save. Optimizer state is reset.
func (m *LeNet) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read checkpoint %s", path)
	}
	var s savedModel
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrapf(err, "decode checkpoint %s", path)
	}
	if s.Arch != archName {
		return errors.Errorf("checkpoint %s: arch %q, want %q", path, s.Arch, archName)
	}
	params := m.Parameters()
	if len(s.Params) != len(params) {
		return errors.Errorf("checkpoint %s: %d params, want %d", path, len(s.Params), len(params))
	}
	for i, p := range params {
		sp := s.Params[i]
		if sp.Name != p.Name || len(sp.Data) != len(p.Data) {
			return errors.Errorf("checkpoint %s: param %d is %s[%d], want %s[%d]",
				path, i, sp.Name, len(sp.Data), p.Name, len(p.Data))
		}
	}
	for i, p := range params {
		copy(p.Data, s.Params[i].Data)
	}
	m.velocity = m.newGrads()
	return nil
}
