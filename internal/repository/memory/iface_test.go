package memory

import "github.com/and161185/efiling/internal/repository"

var (
	_ repository.UserRepository       = (*UserRepo)(nil)
	_ repository.FileRepository       = (*FileRepo)(nil)
	_ repository.MovementRepository   = (*MovementRepo)(nil)
	_ repository.MailRepository       = (*MailRepo)(nil)
	_ repository.DepartmentRepository = (*DepartmentRepo)(nil)
	_ repository.MDARepository        = (*MDARepo)(nil)
	_ repository.PersonnelRepository  = (*PersonnelRepo)(nil)
)
