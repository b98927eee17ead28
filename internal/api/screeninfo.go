// SPDX-License-Identifier: MIT

package api

// Resolution is one selectable streaming resolution.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Adapter describes the primary display the client renders on.
type Adapter struct {
	Width       int `json:"adapterWidth"`
	Height      int `json:"adapterHeight"`
	RefreshRate int `json:"adapterFPS"`
}

// ScreenInfo is the capability set the settings UI offers for stream
// resolution and frame rate selection.
type ScreenInfo struct {
	ResolutionList []Resolution `json:"resolutionList"`
	FPSList        []int        `json:"fpsList"`
	Adapter        Adapter      `json:"adapter"`
	SupportsHDR    bool         `json:"supportsHdr"`
}

// DefaultScreenInfo builds the capability set around the given primary
// display mode. Resolutions larger than the display stay listed so a host
// can downscale to the client.
func DefaultScreenInfo(adapter Adapter, supportsHDR bool) ScreenInfo {
	if adapter.Width == 0 || adapter.Height == 0 {
		adapter = Adapter{Width: 1920, Height: 1080, RefreshRate: 60}
	}
	if adapter.RefreshRate == 0 {
		adapter.RefreshRate = 60
	}

	resolutions := []Resolution{
		{Width: 1280, Height: 720},
		{Width: 1920, Height: 1080},
		{Width: 2560, Height: 1440},
		{Width: 3840, Height: 2160},
	}
	native := Resolution{Width: adapter.Width, Height: adapter.Height}
	found := false
	for _, r := range resolutions {
		if r == native {
			found = true
			break
		}
	}
	if !found {
		resolutions = append(resolutions, native)
	}

	fps := []int{30, 60}
	for _, candidate := range []int{90, 120} {
		if adapter.RefreshRate >= candidate {
			fps = append(fps, candidate)
		}
	}
	if adapter.RefreshRate > 60 {
		dup := false
		for _, f := range fps {
			if f == adapter.RefreshRate {
				dup = true
				break
			}
		}
		if !dup {
			fps = append(fps, adapter.RefreshRate)
		}
	}

	return ScreenInfo{
		ResolutionList: resolutions,
		FPSList:        fps,
		Adapter:        adapter,
		SupportsHDR:    supportsHDR,
	}
}
