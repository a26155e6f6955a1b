package main

import (
	"fmt"

	"github.com/banksean/orchestra/internal/imageref"
)

// ImageLsCmd lists every distinct image reference recorded across all
// networks, validating each as a well-formed reference and, with
// --remote, probing whether it still resolves in its registry.
type ImageLsCmd struct {
	Remote bool `help:"also check whether each image exists in its remote registry"`
}

func (c *ImageLsCmd) Run(cctx *Context) error {
	networks, err := cctx.Store.ListNetworks(cctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, n := range networks {
		containers, err := cctx.Store.ListContainersByNetwork(cctx, n.ID)
		if err != nil {
			return err
		}
		for _, cn := range containers {
			if cn.Image == "" || seen[cn.Image] {
				continue
			}
			seen[cn.Image] = true

			status := "valid reference"
			if verr := imageref.Validate(cn.Image); verr != nil {
				status = "invalid: " + verr.Error()
			} else if c.Remote {
				exists, rerr := imageref.Exists(cctx, cn.Image)
				switch {
				case rerr != nil:
					status = "remote check failed: " + rerr.Error()
				case exists:
					status = "present in registry"
				default:
					status = "not found in registry"
				}
			}
			fmt.Printf("%-40s  %s\n", cn.Image, status)
		}
	}
	return nil
}
