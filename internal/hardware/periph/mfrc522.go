package periph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

// MFRC522 registers and commands used by the REQA / anti-collision path.
const (
	regCommand    = 0x01
	regCommIEn    = 0x02
	regCommIrq    = 0x04
	regError      = 0x06
	regFIFOData   = 0x09
	regFIFOLevel  = 0x0A
	regControl    = 0x0C
	regBitFraming = 0x0D
	regMode       = 0x11
	regTxControl  = 0x14
	regTxASK      = 0x15
	regTMode      = 0x2A
	regTPrescaler = 0x2B
	regTReloadH   = 0x2C
	regTReloadL   = 0x2D

	cmdIdle       = 0x00
	cmdTransceive = 0x0C
	cmdSoftReset  = 0x0F

	piccReqIdle  = 0x26
	piccAnticoll = 0x93

	fifoMax        = 16
	irqWaitBudget  = 2000
	irqTransceive  = 0x77
	irqWaitRxIdle  = 0x30
	irqTimer       = 0x01
	errMaskProto   = 0x1B
	atqaBits       = 0x10
	anticollUIDLen = 5
)

// errNoCard covers every "nothing to read" outcome of a transceive.
var errNoCard = errors.New("mfrc522: no card")

// Conn is the subset of spi.Conn the driver needs.
type Conn interface {
	Tx(w, r []byte) error
}

// MFRC522 is a minimal driver for the NXP MFRC522 reader.  It is safe for
// use from one polling goroutine at a time.
type MFRC522 struct {
	mu   sync.Mutex
	conn Conn
}

// NewMFRC522 soft-resets the chip, configures its timer so a missing card
// times out in ~25ms, and turns the antenna on.
func NewMFRC522(c Conn) (*MFRC522, error) {
	r := &MFRC522{conn: c}
	steps := []struct {
		reg, val byte
	}{
		{regCommand, cmdSoftReset},
		{regTMode, 0x8D},
		{regTPrescaler, 0x3E},
		{regTReloadL, 30},
		{regTReloadH, 0},
		{regTxASK, 0x40},
		{regMode, 0x3D},
	}
	for _, s := range steps {
		if err := r.write(s.reg, s.val); err != nil {
			return nil, fmt.Errorf("mfrc522 init: %w", err)
		}
	}
	if err := r.setBits(regTxControl, 0x03); err != nil {
		return nil, fmt.Errorf("mfrc522 antenna on: %w", err)
	}
	return r, nil
}

// PollOnce issues REQA and, if a card answers, the cascade-level-1
// anti-collision exchange.  Implements hardware.TagReader.
func (r *MFRC522) PollOnce() (types.TagID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.write(regBitFraming, 0x07); err != nil {
		return 0, false, err
	}
	_, bits, err := r.transceive([]byte{piccReqIdle})
	if errors.Is(err, errNoCard) || (err == nil && bits != atqaBits) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	if err := r.write(regBitFraming, 0x00); err != nil {
		return 0, false, err
	}
	uid, _, err := r.transceive([]byte{piccAnticoll, 0x20})
	if errors.Is(err, errNoCard) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(uid) != anticollUIDLen || uid[0]^uid[1]^uid[2]^uid[3] != uid[4] {
		return 0, false, nil
	}

	id, _ := types.TagIDFromUID(uid)
	return id, true, nil
}

// transceive sends data to the card and returns its answer with the
// number of valid bits.  Bus errors are returned as-is; protocol-level
// failures are reported as errNoCard.
func (r *MFRC522) transceive(data []byte) ([]byte, int, error) {
	if err := r.write(regCommIEn, irqTransceive|0x80); err != nil {
		return nil, 0, err
	}
	if err := r.clearBits(regCommIrq, 0x80); err != nil {
		return nil, 0, err
	}
	if err := r.setBits(regFIFOLevel, 0x80); err != nil {
		return nil, 0, err
	}
	if err := r.write(regCommand, cmdIdle); err != nil {
		return nil, 0, err
	}
	for _, b := range data {
		if err := r.write(regFIFOData, b); err != nil {
			return nil, 0, err
		}
	}
	if err := r.write(regCommand, cmdTransceive); err != nil {
		return nil, 0, err
	}
	if err := r.setBits(regBitFraming, 0x80); err != nil {
		return nil, 0, err
	}

	var irq byte
	done := false
	for i := 0; i < irqWaitBudget; i++ {
		v, err := r.read(regCommIrq)
		if err != nil {
			return nil, 0, err
		}
		irq = v
		if irq&(irqTimer|irqWaitRxIdle) != 0 {
			done = true
			break
		}
	}
	if err := r.clearBits(regBitFraming, 0x80); err != nil {
		return nil, 0, err
	}
	if !done {
		return nil, 0, errNoCard
	}

	errReg, err := r.read(regError)
	if err != nil {
		return nil, 0, err
	}
	if errReg&errMaskProto != 0 || irq&irqTransceive&irqTimer != 0 {
		return nil, 0, errNoCard
	}

	n, err := r.read(regFIFOLevel)
	if err != nil {
		return nil, 0, err
	}
	ctrl, err := r.read(regControl)
	if err != nil {
		return nil, 0, err
	}
	lastBits := int(ctrl & 0x07)
	bits := int(n) * 8
	if lastBits != 0 {
		bits = (int(n)-1)*8 + lastBits
	}
	if n == 0 {
		n = 1
	}
	if n > fifoMax {
		n = fifoMax
	}

	out := make([]byte, n)
	for i := range out {
		if out[i], err = r.read(regFIFOData); err != nil {
			return nil, 0, err
		}
	}
	return out, bits, nil
}

func (r *MFRC522) write(reg, val byte) error {
	return r.conn.Tx([]byte{(reg << 1) & 0x7E, val}, nil)
}

func (r *MFRC522) read(reg byte) (byte, error) {
	rx := make([]byte, 2)
	if err := r.conn.Tx([]byte{((reg << 1) & 0x7E) | 0x80, 0}, rx); err != nil {
		return 0, err
	}
	return rx[1], nil
}

func (r *MFRC522) setBits(reg, mask byte) error {
	v, err := r.read(reg)
	if err != nil {
		return err
	}
	return r.write(reg, v|mask)
}

func (r *MFRC522) clearBits(reg, mask byte) error {
	v, err := r.read(reg)
	if err != nil {
		return err
	}
	return r.write(reg, v&^mask)
}
