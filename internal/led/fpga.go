package led

// FPGAConfig locates the register window and the framebuffer device.
type FPGAConfig struct {
	RegsBase uint64
	RegsSize int
	FBDevice string
	FBSize   int
}

func DefaultFPGAConfig() FPGAConfig {
	return FPGAConfig{
		RegsBase: 0x1000000,
		RegsSize: 0x2000,
		FBDevice: "/dev/ledfb",
		FBSize:   0x4000,
	}
}
