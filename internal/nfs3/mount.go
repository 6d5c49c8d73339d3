package nfs3

import "github.com/objfsd/objfsd/internal/nfs3/xdr"

// Mount status, RFC 1813 Appendix I.
const (
	Mnt3OK          Status = 0
	Mnt3ErrPerm     Status = 1
	Mnt3ErrNoEnt    Status = 2
	Mnt3ErrIO       Status = 5
	Mnt3ErrAcces    Status = 13
	Mnt3ErrNotDir   Status = 20
	Mnt3ErrInval    Status = 22
	Mnt3ErrNameTooLong Status = 63
	Mnt3ErrNotSupp  Status = 10004
	Mnt3ErrServerFault Status = 10006
)

// Auth flavors, RFC 5531 §8.2.
const (
	AuthFlavorNone    uint32 = 0
	AuthFlavorSys     uint32 = 1
	AuthFlavorShort   uint32 = 2
	AuthFlavorDH      uint32 = 3
	AuthFlavorRPCSECGSS uint32 = 6
)

// MountProgram3 is the MOUNT protocol client used to bootstrap NfsFS
// mounts, grounded on original_source's Mountprog3<SysClient> (mnt,
// listexports) minus the template's auth-flavor parameterization.
type MountProgram3 struct {
	rpc *Client
}

func NewMountProgram3(rpc *Client) *MountProgram3 { return &MountProgram3{rpc: rpc} }

func (p *MountProgram3) call(proc uint32, argBody []byte) (*xdr.Decoder, error) {
	res, err := p.rpc.Call(MountProgram, MountVersion3, proc, argBody)
	if err != nil {
		return nil, err
	}
	return xdr.NewDecoder(res), nil
}

// MountResult is the result of MNT.
type MountResult struct {
	Status      Status
	FHandle     FH3
	AuthFlavors []uint32
}

func (p *MountProgram3) Mnt(dirpath string) (MountResult, error) {
	e := xdr.NewEncoder()
	e.PutString(dirpath)
	d, err := p.call(MountProcMnt, e.Bytes())
	if err != nil {
		return MountResult{}, err
	}
	var r MountResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.Status != Mnt3OK {
		return r, nil
	}
	fh, err := d.GetOpaque(64)
	if err != nil {
		return r, err
	}
	r.FHandle = FH3(fh)
	for {
		more, err := d.GetBool()
		if err != nil {
			return r, err
		}
		if !more {
			break
		}
		flavor, err := d.GetUint32()
		if err != nil {
			return r, err
		}
		r.AuthFlavors = append(r.AuthFlavors, flavor)
	}
	return r, nil
}

// Export describes one entry in the server's export list (EXPORT).
type Export struct {
	Dir    string
	Groups []string
}

func (p *MountProgram3) Export() ([]Export, error) {
	d, err := p.call(MountProcExport, nil)
	if err != nil {
		return nil, err
	}
	var exports []Export
	for {
		more, err := d.GetBool()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
		var ex Export
		if ex.Dir, err = d.GetString(1024); err != nil {
			return nil, err
		}
		for {
			moreGroup, err := d.GetBool()
			if err != nil {
				return nil, err
			}
			if !moreGroup {
				break
			}
			g, err := d.GetString(255)
			if err != nil {
				return nil, err
			}
			ex.Groups = append(ex.Groups, g)
		}
		exports = append(exports, ex)
	}
	return exports, nil
}

// Umnt releases the client's mount entry on the server.
func (p *MountProgram3) Umnt(dirpath string) error {
	e := xdr.NewEncoder()
	e.PutString(dirpath)
	_, err := p.call(MountProcUmnt, e.Bytes())
	return err
}
